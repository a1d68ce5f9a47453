package results

import (
	"testing"

	"github.com/DeLoWaN/openfront-discord-bot/internal/openfront"
)

func teamMatch() *openfront.MatchDetail {
	return &openfront.MatchDetail{
		ID:           "m1",
		Map:          "Europe",
		Mode:         "Team",
		TeamScheme:   "Trios",
		NumTeams:     4,
		TotalPlayers: 12,
		Players: []openfront.Player{
			{Name: "alice", ClientID: "c1", Tag: "abc"},
			{Name: "bob", ClientID: "c2", Tag: "abc"},
			{Name: "[XYZ] carol", ClientID: "c3"},
			{Name: "dave", ClientID: "c4"},
		},
		Winners: []string{"c1"},
	}
}

func tags(ts ...string) map[string]bool {
	m := make(map[string]bool)
	for _, t := range ts {
		m[t] = true
	}
	return m
}

func TestResolveNotRelevantWithoutTagOverlap(t *testing.T) {
	var r Resolver
	if _, ok := r.Resolve(teamMatch(), tags("ZZZ"), nil); ok {
		t.Fatal("no configured tag won, want not relevant")
	}
	if _, ok := r.Resolve(teamMatch(), nil, nil); ok {
		t.Fatal("empty tag set, want not relevant")
	}
}

func TestResolveExcludedMode(t *testing.T) {
	r := Resolver{ExcludedModes: []string{" team "}}
	if _, ok := r.Resolve(teamMatch(), tags("ABC"), nil); ok {
		t.Fatal("excluded mode must never be relevant")
	}
}

func TestResolveTeamEliminatedAndOthers(t *testing.T) {
	var r Resolver
	out, ok := r.Resolve(teamMatch(), tags("ABC"), nil)
	if !ok {
		t.Fatal("want relevant")
	}
	if len(out.Winners) != 2 {
		t.Fatalf("winners = %d, want alice and bob", len(out.Winners))
	}
	byName := map[string]Winner{}
	for _, w := range out.Winners {
		byName[w.Name] = w
	}
	if byName["alice"].Eliminated {
		t.Fatal("alice is on the winner list, not eliminated")
	}
	if !byName["bob"].Eliminated {
		t.Fatal("bob shares the winning tag but is absent from the winner list")
	}
	// Trios means 3 per team; 2 displayed, so 1 unaccounted teammate.
	if out.OthersCount != 1 {
		t.Fatalf("others = %d, want 1", out.OthersCount)
	}
}

func TestResolveFFASkipsTeammates(t *testing.T) {
	d := teamMatch()
	d.Mode = "Free For All"
	d.TeamScheme = ""
	var r Resolver
	out, ok := r.Resolve(d, tags("ABC"), nil)
	if !ok {
		t.Fatal("want relevant")
	}
	if len(out.Winners) != 1 || out.Winners[0].Name != "alice" {
		t.Fatalf("winners = %+v, want only the winner-list entry", out.Winners)
	}
	if out.Winners[0].Eliminated {
		t.Fatal("eliminated flag has no meaning in free-for-all")
	}
	if out.OthersCount != 0 {
		t.Fatalf("others = %d, want 0 in free-for-all", out.OthersCount)
	}
}

func TestResolveBracketPrefixTag(t *testing.T) {
	d := teamMatch()
	d.Winners = []string{"c3"}
	var r Resolver
	out, ok := r.Resolve(d, tags("XYZ"), nil)
	if !ok {
		t.Fatal("bracket-prefixed tag should match")
	}
	if len(out.WinningTags) != 1 || out.WinningTags[0] != "XYZ" {
		t.Fatalf("winning tags = %v", out.WinningTags)
	}
}

func TestResolveOpponentsGrouping(t *testing.T) {
	d := teamMatch()
	d.Players = append(d.Players,
		openfront.Player{Name: "erin", ClientID: "c5", Tag: "xyz"},
		openfront.Player{Name: "frank", ClientID: "c6", Tag: "xyz"},
	)
	var r Resolver
	out, ok := r.Resolve(d, tags("ABC"), nil)
	if !ok {
		t.Fatal("want relevant")
	}
	// carol, erin, frank share XYZ; dave is untagged. Biggest group first.
	if len(out.Opponents) != 2 {
		t.Fatalf("groups = %+v", out.Opponents)
	}
	if out.Opponents[0].Tag != "XYZ" || len(out.Opponents[0].Names) != 3 {
		t.Fatalf("first group = %+v", out.Opponents[0])
	}
	if out.Opponents[1].Tag != "" || len(out.Opponents[1].Names) != 1 {
		t.Fatalf("second group = %+v", out.Opponents[1])
	}
}

func TestResolveOpponentsExcludeAllWinningTags(t *testing.T) {
	// Two tags on the winner list, only one configured: the other winning
	// tag's players still never show up as opponents.
	d := teamMatch()
	d.Winners = []string{"c1", "c3"}
	var r Resolver
	out, ok := r.Resolve(d, tags("ABC"), nil)
	if !ok {
		t.Fatal("want relevant")
	}
	for _, g := range out.Opponents {
		if g.Tag == "XYZ" {
			t.Fatalf("co-winning tag listed as opponent: %+v", g)
		}
	}
	for _, w := range out.Winners {
		if w.Name == "[XYZ] carol" {
			t.Fatal("unconfigured tag must not be displayed as winner")
		}
	}
}

func TestResolveMentionExactlyOne(t *testing.T) {
	bindings := map[string][]string{
		"alice": {"u1"},
		"bob":   {"u2", "u3"},
	}
	var r Resolver
	out, ok := r.Resolve(teamMatch(), tags("ABC"), bindings)
	if !ok {
		t.Fatal("want relevant")
	}
	byName := map[string]Winner{}
	for _, w := range out.Winners {
		byName[w.Name] = w
	}
	if byName["alice"].Mention != "u1" {
		t.Fatalf("alice mention = %q, want u1", byName["alice"].Mention)
	}
	if byName["bob"].Mention != "" {
		t.Fatal("ambiguous binding must render plain text")
	}
}

func TestModeString(t *testing.T) {
	cases := []struct {
		name string
		d    openfront.MatchDetail
		want string
	}{
		{"named scheme", openfront.MatchDetail{Mode: "Team", TeamScheme: "Duos", NumTeams: 5, TotalPlayers: 10}, "5 teams (Duos)"},
		{"numeric divisible", openfront.MatchDetail{Mode: "Team", TeamScheme: "4", TotalPlayers: 40}, "4 teams (10 players per team)"},
		{"numeric indivisible", openfront.MatchDetail{Mode: "Team", TeamScheme: "3", TotalPlayers: 40}, "3 teams"},
		{"ffa", openfront.MatchDetail{Mode: "Free For All"}, "Free For All"},
		{"bare", openfront.MatchDetail{Mode: "Team"}, "Team"},
	}
	for _, tc := range cases {
		if got := modeString(&tc.d); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEffectiveTag(t *testing.T) {
	cases := []struct {
		p    openfront.Player
		want string
	}{
		{openfront.Player{Tag: "abc"}, "ABC"},
		{openfront.Player{Name: "[xyz] bob"}, "XYZ"},
		{openfront.Player{Name: "plain"}, ""},
		{openfront.Player{Name: "[toolongtagname] x"}, ""},
		{openfront.Player{Tag: " ab ", Name: "[zz] x"}, "AB"},
	}
	for _, tc := range cases {
		if got := effectiveTag(tc.p); got != tc.want {
			t.Errorf("effectiveTag(%+v) = %q, want %q", tc.p, got, tc.want)
		}
	}
}
