// Package terminal renders playback updates as plain text lines.
package terminal

import (
	"fmt"
	"io"
	"strings"

	"chat-playback-engine/pkg/models"
	"chat-playback-engine/pkg/playback"
)

// Printer writes one line per observable step: a scenario header, typing
// indicators, the local user sending a message, and every finished turn.
type Printer struct {
	w io.Writer

	session string
	typing  string
	sending string
	printed map[string]bool
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, printed: make(map[string]bool)}
}

// Handle renders one update and reports whether the scenario just completed.
func (p *Printer) Handle(u playback.Update) bool {
	if u.LocalInput != nil {
		fmt.Fprintf(p.w, "  ↳ sent %q\n", u.LocalInput.Content)
		return false
	}
	if u.Snapshot == nil {
		return false
	}
	snap := u.Snapshot

	if snap.SessionID != p.session {
		p.session = snap.SessionID
		p.typing = ""
		p.sending = ""
		p.printed = make(map[string]bool)
		p.header(snap)
	}

	if ti := snap.TypingIndicator; ti != nil && ti.TurnID != p.typing {
		p.typing = ti.TurnID
		fmt.Fprintf(p.w, "  %s is typing…\n", ti.Sender)
	}

	if snap.Input.Sending && snap.Input.TurnID != p.sending {
		p.sending = snap.Input.TurnID
		fmt.Fprintf(p.w, "  [input] %s ⏎\n", snap.Input.Content)
	}

	for i, turn := range snap.Turns {
		if p.printed[turn.ID] || !turnDone(snap, i) {
			continue
		}
		p.printed[turn.ID] = true
		p.turn(turn)
	}

	return snap.IsComplete
}

func turnDone(snap *models.Snapshot, index int) bool {
	turn := snap.Turns[index]
	if !turn.Visible {
		return false
	}
	return snap.IsComplete || index < snap.Cursor || snap.Phase == models.PhaseTurnComplete
}

func (p *Printer) header(snap *models.Snapshot) {
	title := snap.ScenarioName
	if snap.Thread.Title != "" {
		title = fmt.Sprintf("%s · %s", title, snap.Thread.Title)
	}
	line := fmt.Sprintf("== %s ==", title)
	if snap.Thread.Channel != "" {
		line += " #" + snap.Thread.Channel
	}
	fmt.Fprintln(p.w, line)
}

func (p *Printer) turn(turn models.TurnView) {
	prefix := ""
	if turn.TimestampLabel != "" {
		prefix = "[" + turn.TimestampLabel + "] "
	}
	arrow := "<"
	if turn.Outgoing {
		arrow = ">"
	}
	if turn.Role == models.RoleSystem {
		arrow = "!"
	}

	lines := strings.Split(turn.DisplayedContent, "\n")
	fmt.Fprintf(p.w, "%s%s %s: %s\n", prefix, arrow, turn.Sender, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(p.w, "    %s\n", line)
	}
}
