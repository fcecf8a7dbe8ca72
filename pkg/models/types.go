package models

import (
	"fmt"
	"time"
)

// Role identifies who authored a turn
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleHuman, RoleAI, RoleSystem:
		return true
	}
	return false
}

// Kind is a rendering hint for a turn. It never changes scheduling.
type Kind string

const (
	KindText  Kind = "text"
	KindRich  Kind = "rich"
	KindCard  Kind = "card"
	KindAlert Kind = "alert"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindText, KindRich, KindCard, KindAlert:
		return true
	}
	return false
}

// Thread describes the conversation a scenario is set in
type Thread struct {
	Title    string `yaml:"title" json:"title"`
	Channel  string `yaml:"channel" json:"channel"`
	Goal     string `yaml:"goal,omitempty" json:"goal,omitempty"`
	Timezone string `yaml:"tz" json:"tz"`
}

// Turn is one authored transcript entry
type Turn struct {
	Sender         string `yaml:"sender" json:"sender"`
	Role           Role   `yaml:"role" json:"role"`
	Kind           Kind   `yaml:"kind" json:"kind"`
	TimestampLabel string `yaml:"timestamp" json:"timestamp"`
	Content        string `yaml:"content" json:"content"`
	PauseOffsets   []int  `yaml:"pauses,omitempty" json:"pauses,omitempty"`
	PreDelayMS     int64  `yaml:"pre_delay_ms,omitempty" json:"pre_delay_ms,omitempty"`
	LocalInput     bool   `yaml:"local_input,omitempty" json:"local_input,omitempty"`
}

// PreDelay returns the turn's pre-delay, or def when the turn sets none.
func (t Turn) PreDelay(def time.Duration) time.Duration {
	if t.PreDelayMS > 0 {
		return time.Duration(t.PreDelayMS) * time.Millisecond
	}
	return def
}

// Scenario is an immutable scripted conversation
type Scenario struct {
	ID          int    `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	PointOfView string `yaml:"pov" json:"pov"`
	Thread      Thread `yaml:"thread" json:"thread"`
	Turns       []Turn `yaml:"turns" json:"turns"`
}

// TurnID returns the identity of the turn at index within the scenario.
func (s *Scenario) TurnID(index int) string {
	return TurnID(s.ID, index)
}

// IsPointOfView reports whether sender is the scenario's local user.
func (s *Scenario) IsPointOfView(sender string) bool {
	return s.PointOfView != "" && s.PointOfView == sender
}

// TurnID formats a turn identity as "<scenario id>-<turn index>".
func TurnID(scenarioID, index int) string {
	return fmt.Sprintf("%d-%d", scenarioID, index)
}

// Phase is the Turn Scheduler state
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhasePreDelay            Phase = "pre-delay"
	PhaseTypingIndicator     Phase = "typing-indicator"
	PhaseRevealing           Phase = "revealing"
	PhaseAwaitingInputSubmit Phase = "awaiting-input-submit"
	PhaseTurnComplete        Phase = "turn-complete"
	PhaseComplete            Phase = "complete"
)

// IsActive reports whether the phase schedules timers.
func (p Phase) IsActive() bool {
	switch p {
	case PhasePreDelay, PhaseTypingIndicator, PhaseRevealing, PhaseAwaitingInputSubmit, PhaseTurnComplete:
		return true
	}
	return false
}

// TypingIndicator marks a remote sender as "typing…"
type TypingIndicator struct {
	Sender string `json:"sender"`
	Role   Role   `json:"role"`
	TurnID string `json:"turn_id"`
}

// TurnView is the rendered state of one turn
type TurnView struct {
	ID               string `json:"id"`
	Sender           string `json:"sender"`
	Role             Role   `json:"role"`
	Kind             Kind   `json:"kind"`
	TimestampLabel   string `json:"timestamp"`
	Outgoing         bool   `json:"outgoing"`
	Visible          bool   `json:"visible"`
	IsTyping         bool   `json:"is_typing"`
	DisplayedContent string `json:"displayed_content"`
}

// InputView is the rendered state of the simulated outbound input box
type InputView struct {
	TurnID  string `json:"turn_id,omitempty"`
	Content string `json:"content"`
	Active  bool   `json:"active"`
	Sending bool   `json:"sending"`
}

// Snapshot is the full rendered state of a playback session
type Snapshot struct {
	SessionID       string           `json:"session_id"`
	ScenarioID      int              `json:"scenario_id"`
	ScenarioName    string           `json:"scenario_name"`
	Thread          Thread           `json:"thread"`
	PointOfView     string           `json:"pov"`
	Phase           Phase            `json:"phase"`
	Cursor          int              `json:"cursor"`
	Turns           []TurnView       `json:"turns"`
	TypingIndicator *TypingIndicator `json:"typing_indicator,omitempty"`
	Input           InputView        `json:"input"`
	IsLive          bool             `json:"is_live"`
	IsComplete      bool             `json:"is_complete"`
}

// VisibleTurns returns the turns currently shown in the thread.
func (s Snapshot) VisibleTurns() []TurnView {
	var visible []TurnView
	for _, t := range s.Turns {
		if t.Visible {
			visible = append(visible, t)
		}
	}
	return visible
}

// LocalInputEvent is emitted when the simulated local user "sends" a message
type LocalInputEvent struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Content   string `json:"content"`
}

// EventType names a playback lifecycle event
type EventType string

const (
	EventShown      EventType = "shown"
	EventCompleted  EventType = "completed"
	EventLocalInput EventType = "local_input"
	EventStopped    EventType = "stopped"
)

// PlaybackEvent carries attribution metadata about a demo shown to a viewer
type PlaybackEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Slot         string    `json:"slot"`
	InstanceID   string    `json:"instance_id"`
	SessionID    string    `json:"session_id"`
	ScenarioID   int       `json:"scenario_id"`
	ScenarioName string    `json:"scenario_name"`
	TurnID       string    `json:"turn_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
