package results

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DeLoWaN/openfront-discord-bot/internal/openfront"
)

// Winner is one displayed winning player.
type Winner struct {
	Name       string
	Mention    string // subscriber identity to mention; empty renders plain
	Eliminated bool   // on a winning team but absent from the winner list
}

// OpponentGroup is the set of opposing players sharing one effective tag.
type OpponentGroup struct {
	Tag   string // empty means untagged
	Names []string
}

// Outcome is the resolved, consumer-specific result of a finished match.
type Outcome struct {
	MatchID     string
	Map         string
	Mode        string
	Start       time.Time
	End         time.Time
	Duration    time.Duration
	ReplayURL   string
	WinningTags []string // configured tags that won, sorted
	Winners     []Winner
	OthersCount int // winning teammates not individually displayed
	Opponents   []OpponentGroup
}

// Resolver maps a match detail plus one consumer's configuration to an
// Outcome. It is pure: no I/O, no retained state beyond configuration.
type Resolver struct {
	// ExcludedModes lists mode descriptors that never produce an outcome,
	// compared case- and whitespace-insensitively.
	ExcludedModes []string
}

var bracketTag = regexp.MustCompile(`^\[([^\[\]]{1,10})\]`)

// effectiveTag returns the player's affiliation tag, normalized uppercase.
// Falls back to a [TAG]-style prefix in the display name.
func effectiveTag(p openfront.Player) string {
	if t := strings.TrimSpace(p.Tag); t != "" {
		return strings.ToUpper(t)
	}
	if m := bracketTag.FindStringSubmatch(strings.TrimSpace(p.Name)); m != nil {
		return strings.ToUpper(strings.TrimSpace(m[1]))
	}
	return ""
}

func (r *Resolver) excluded(mode string) bool {
	m := strings.ToLower(strings.TrimSpace(mode))
	if m == "" {
		return false
	}
	for _, ex := range r.ExcludedModes {
		if strings.ToLower(strings.TrimSpace(ex)) == m {
			return true
		}
	}
	return false
}

// Resolve evaluates one consumer's tag set against a finished match.
// Returns (nil, false) when the match is not relevant to the consumer.
// tagSet keys must be uppercase; bindings maps player names to the
// subscriber identities bound to that name.
func (r *Resolver) Resolve(d *openfront.MatchDetail, tagSet map[string]bool, bindings map[string][]string) (*Outcome, bool) {
	if r.excluded(d.Mode) || len(tagSet) == 0 {
		return nil, false
	}

	winnerIDs := make(map[string]bool, len(d.Winners))
	for _, id := range d.Winners {
		winnerIDs[id] = true
	}

	// Tags present on the winner list, split into all of them and the
	// subset this consumer cares about.
	allWinningTags := make(map[string]bool)
	wonTags := make(map[string]bool)
	for _, p := range d.Players {
		if !winnerIDs[p.ClientID] {
			continue
		}
		tag := effectiveTag(p)
		if tag == "" {
			continue
		}
		allWinningTags[tag] = true
		if tagSet[tag] {
			wonTags[tag] = true
		}
	}
	if len(wonTags) == 0 {
		return nil, false
	}

	out := &Outcome{
		MatchID:   d.ID,
		Map:       d.Map,
		Mode:      modeString(d),
		Start:     d.Start,
		End:       d.End,
		Duration:  d.Duration,
		ReplayURL: "https://openfront.io/#join=" + d.ID,
	}
	for tag := range wonTags {
		out.WinningTags = append(out.WinningTags, tag)
	}
	sort.Strings(out.WinningTags)

	ffa := d.FreeForAll()
	displayedPerTag := make(map[string]int)
	for _, p := range d.Players {
		tag := effectiveTag(p)
		if !wonTags[tag] {
			continue
		}
		if ffa && !winnerIDs[p.ClientID] {
			// FFA teammates did not win; only winner-list entries count.
			continue
		}
		out.Winners = append(out.Winners, Winner{
			Name:       p.Name,
			Mention:    singleBinding(bindings, p.Name),
			Eliminated: !ffa && !winnerIDs[p.ClientID],
		})
		displayedPerTag[tag]++
	}

	if !ffa {
		if per := d.PlayersPerTeam(); per > 0 {
			for _, shown := range displayedPerTag {
				if per > shown {
					out.OthersCount += per - shown
				}
			}
		}
	}

	out.Opponents = opponentGroups(d, winnerIDs, allWinningTags)
	return out, true
}

// singleBinding resolves a player name to a subscriber identity, but only
// when the name is bound to exactly one identity.
func singleBinding(bindings map[string][]string, name string) string {
	ids := bindings[strings.ToLower(strings.TrimSpace(name))]
	if len(ids) == 1 {
		return ids[0]
	}
	return ""
}

// opponentGroups collects everyone outside the winning side, grouped by
// effective tag, ordered by descending size then tag.
func opponentGroups(d *openfront.MatchDetail, winnerIDs, winningTags map[string]bool) []OpponentGroup {
	byTag := make(map[string][]string)
	for _, p := range d.Players {
		if winnerIDs[p.ClientID] {
			continue
		}
		tag := effectiveTag(p)
		if winningTags[tag] && tag != "" {
			continue
		}
		byTag[tag] = append(byTag[tag], p.Name)
	}
	groups := make([]OpponentGroup, 0, len(byTag))
	for tag, names := range byTag {
		groups = append(groups, OpponentGroup{Tag: tag, Names: names})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].Names) != len(groups[j].Names) {
			return len(groups[i].Names) > len(groups[j].Names)
		}
		return groups[i].Tag < groups[j].Tag
	})
	return groups
}

// modeString renders the mode descriptor for display. Team matches with a
// named size scheme show the scheme; numeric schemes show the derived team
// size when the player count divides evenly.
func modeString(d *openfront.MatchDetail) string {
	scheme := strings.TrimSpace(d.TeamScheme)
	if scheme == "" || d.FreeForAll() {
		return d.Mode
	}
	if n, err := strconv.Atoi(scheme); err == nil && n > 0 {
		if d.TotalPlayers > 0 && d.TotalPlayers%n == 0 {
			return fmt.Sprintf("%d teams (%d players per team)", n, d.TotalPlayers/n)
		}
		return fmt.Sprintf("%d teams", n)
	}
	teams := d.NumTeams
	if teams == 0 && d.TotalPlayers > 0 {
		if per := d.PlayersPerTeam(); per > 0 {
			teams = d.TotalPlayers / per
		}
	}
	if teams > 0 {
		return fmt.Sprintf("%d teams (%s)", teams, scheme)
	}
	return d.Mode
}
