package results

import (
	"fmt"
	"strings"
	"time"
)

// Message is a formatted notification ready for a delivery adapter.
type Message struct {
	Title       string
	Description string
	Fields      []MessageField
}

// MessageField is one labeled block of a Message.
type MessageField struct {
	Name  string
	Value string
}

// Format renders an outcome as a victory announcement. Mentions use the
// chat platform's <@id> syntax; names without a single bound identity stay
// plain text.
func Format(o *Outcome) Message {
	var desc strings.Builder
	fmt.Fprintf(&desc, "**Map:** %s\n", o.Map)
	if o.Mode != "" {
		fmt.Fprintf(&desc, "**Mode:** %s\n", o.Mode)
	}
	if !o.End.IsZero() {
		fmt.Fprintf(&desc, "**Finished:** <t:%d:F>", o.End.Unix())
		if o.Duration > 0 {
			fmt.Fprintf(&desc, " (%s)", formatDuration(o.Duration))
		}
		desc.WriteByte('\n')
	}
	fmt.Fprintf(&desc, "**Replay:** %s", o.ReplayURL)

	msg := Message{
		Title:       fmt.Sprintf("🏆 Victory for %s!", strings.Join(o.WinningTags, ", ")),
		Description: desc.String(),
	}

	var winners strings.Builder
	for _, w := range o.Winners {
		name := w.Name
		if w.Mention != "" {
			name = fmt.Sprintf("<@%s> (%s)", w.Mention, w.Name)
		}
		fmt.Fprintf(&winners, "🎉 %s", name)
		if w.Eliminated {
			winners.WriteString(" 💀 *died early*")
		}
		winners.WriteByte('\n')
	}
	if o.OthersCount == 1 {
		winners.WriteString("+1 other player\n")
	} else if o.OthersCount > 1 {
		fmt.Fprintf(&winners, "+%d other players\n", o.OthersCount)
	}
	if winners.Len() > 0 {
		msg.Fields = append(msg.Fields, MessageField{Name: "Winners", Value: strings.TrimRight(winners.String(), "\n")})
	}

	if len(o.Opponents) > 0 {
		var opps strings.Builder
		for _, g := range o.Opponents {
			label := "*untagged*"
			if g.Tag != "" {
				label = fmt.Sprintf("**%s**", g.Tag)
			}
			fmt.Fprintf(&opps, "⚔️ %s (%d): %s\n", label, len(g.Names), strings.Join(g.Names, ", "))
		}
		msg.Fields = append(msg.Fields, MessageField{Name: "Opponents", Value: strings.TrimRight(opps.String(), "\n")})
	}
	return msg
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
