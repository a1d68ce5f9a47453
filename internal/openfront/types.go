package openfront

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Player is one participant of a finished match.
type Player struct {
	Name     string
	ClientID string
	Tag      string
}

// MatchDetail is the normalized view of a finished match as served by the
// public archive endpoint. Zero values mean the field was absent upstream.
type MatchDetail struct {
	ID           string
	Map          string
	Mode         string
	NumTeams     int
	TeamScheme   string // raw team descriptor, e.g. "Duos" or "7"
	TotalPlayers int
	Start        time.Time
	End          time.Time
	Duration     time.Duration
	Players      []Player
	Winners      []string // winner client ids, restricted to known participants
}

// FreeForAll reports whether the match mode is free-for-all.
func (d *MatchDetail) FreeForAll() bool {
	return strings.EqualFold(strings.TrimSpace(d.Mode), "free for all")
}

// PlayersPerTeam derives the team size from the team descriptor, falling back
// to dividing the player count by the number of teams. Returns 0 when the
// size cannot be determined.
func (d *MatchDetail) PlayersPerTeam() int {
	switch strings.ToLower(strings.TrimSpace(d.TeamScheme)) {
	case "duos":
		return 2
	case "trios":
		return 3
	case "quads":
		return 4
	}
	if n, err := strconv.Atoi(strings.TrimSpace(d.TeamScheme)); err == nil && n > 0 {
		if d.TotalPlayers > 0 {
			return d.TotalPlayers / n
		}
		return 0
	}
	if d.NumTeams > 0 && d.TotalPlayers > 0 {
		return d.TotalPlayers / d.NumTeams
	}
	return 0
}

// flexInt decodes JSON numbers that some payloads serialize as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", s)
	}
	*f = flexInt(int(n))
	return nil
}

// flexString decodes values that may arrive as either a string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type wireConfig struct {
	GameMode    string     `json:"gameMode"`
	GameMap     string     `json:"gameMap"`
	NumTeams    flexInt    `json:"numTeams"`
	PlayerTeams flexString `json:"playerTeams"`
	MaxPlayers  flexInt    `json:"maxPlayers"`
}

type wirePlayer struct {
	Username string `json:"username"`
	ClientID string `json:"clientID"`
	ClanTag  string `json:"clanTag"`
}

type wireInfo struct {
	Config           *wireConfig  `json:"config"`
	GameMode         string       `json:"gameMode"`
	NumTeams         flexInt      `json:"numTeams"`
	PlayerTeams      flexString   `json:"playerTeams"`
	TotalPlayerCount flexInt      `json:"totalPlayerCount"`
	Players          []wirePlayer `json:"players"`
	Winner           []string     `json:"winner"`
	Start            int64        `json:"start"`
	End              int64        `json:"end"`
	Duration         flexInt      `json:"duration"`
}

type wireDetail struct {
	Info *wireInfo `json:"info"`
}

// ParseMatchDetail normalizes a raw archive payload. Payloads missing the
// top-level info object are rejected as malformed.
func ParseMatchDetail(matchID string, raw []byte) (*MatchDetail, error) {
	var w wireDetail
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode match %s: %w", matchID, err)
	}
	if w.Info == nil {
		return nil, fmt.Errorf("match %s: payload has no info object", matchID)
	}
	info := w.Info
	cfg := info.Config
	if cfg == nil {
		cfg = &wireConfig{}
	}

	d := &MatchDetail{
		ID:           matchID,
		Map:          cfg.GameMap,
		Mode:         cfg.GameMode,
		NumTeams:     int(info.NumTeams),
		TeamScheme:   string(info.PlayerTeams),
		TotalPlayers: int(info.TotalPlayerCount),
	}
	if d.Map == "" {
		d.Map = "Unknown"
	}
	if d.Mode == "" {
		d.Mode = info.GameMode
	}
	if d.NumTeams == 0 {
		d.NumTeams = int(cfg.NumTeams)
	}
	if d.TeamScheme == "" {
		d.TeamScheme = string(cfg.PlayerTeams)
	}
	if d.TotalPlayers == 0 {
		d.TotalPlayers = int(cfg.MaxPlayers)
	}
	// A bare numeric descriptor doubles as the team count.
	if d.NumTeams == 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(d.TeamScheme)); err == nil && n > 0 {
			d.NumTeams = n
		}
	}
	if d.NumTeams == 0 {
		if per := d.PlayersPerTeam(); per > 0 && d.TotalPlayers > 0 {
			d.NumTeams = d.TotalPlayers / per
		}
	}

	known := make(map[string]bool, len(info.Players))
	for _, p := range info.Players {
		if p.ClientID == "" {
			continue
		}
		d.Players = append(d.Players, Player{
			Name:     p.Username,
			ClientID: p.ClientID,
			Tag:      p.ClanTag,
		})
		known[p.ClientID] = true
	}
	for _, id := range info.Winner {
		if known[id] {
			d.Winners = append(d.Winners, id)
		}
	}

	if info.Start > 0 {
		d.Start = time.UnixMilli(info.Start)
	}
	if info.End > 0 {
		d.End = time.UnixMilli(info.End)
	}
	if info.Duration > 0 {
		d.Duration = time.Duration(info.Duration) * time.Second
	} else if !d.Start.IsZero() && !d.End.IsZero() && d.End.After(d.Start) {
		d.Duration = d.End.Sub(d.Start)
	}
	return d, nil
}
