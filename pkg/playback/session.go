// Package playback plays scripted chat transcripts as if they were happening
// live: turns appear in order, remote senders show a typing indicator, text
// is revealed character by character and the local user's turns are typed
// into a simulated input box before they are sent.
package playback

import (
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/constants"
	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/models"
	"chat-playback-engine/pkg/reveal"
)

// Timing holds every delay the scheduler uses.
type Timing struct {
	WPM             int
	Pause           time.Duration
	JitterMax       time.Duration
	JitterSeed      int64 // 0 seeds from the clock
	PreDelay        time.Duration
	TypingIndicator time.Duration
	InputStartDelay time.Duration
	InputSettle     time.Duration
}

// DefaultTiming returns the cadence of the promotional demo.
func DefaultTiming() Timing {
	return Timing{
		WPM:             constants.DefaultTypingWPM,
		Pause:           constants.DefaultPauseMS * time.Millisecond,
		JitterMax:       constants.DefaultJitterMaxMS * time.Millisecond,
		PreDelay:        constants.DefaultPreDelayMS * time.Millisecond,
		TypingIndicator: constants.DefaultTypingIndicatorMS * time.Millisecond,
		InputStartDelay: constants.DefaultInputStartDelayMS * time.Millisecond,
		InputSettle:     constants.DefaultInputSettleMS * time.Millisecond,
	}
}

// Observer receives session output. Callbacks run outside the session lock,
// in the order the session produced them, and may call back into the session.
type Observer struct {
	Change     func(models.Snapshot)
	Complete   func(models.Snapshot)
	LocalInput func(models.LocalInputEvent)
}

type notification struct {
	snapshot   *models.Snapshot
	complete   bool
	localInput *models.LocalInputEvent
}

// Session is one playback of one scenario. It owns all of its timers; Stop
// and Reset cancel them synchronously, so once either returns no callback of
// the old run can change state again.
type Session struct {
	mu       sync.Mutex
	id       string
	scenario *models.Scenario
	contents [][]rune
	timing   Timing
	clk      clock.Clock
	observer Observer
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	timers *timerSet
	reveal *reveal.Timer
	typist *InputTypist

	phase     models.Phase
	cursor    int
	revealed  map[string]int
	typingFor *models.TypingIndicator
	live      bool
	completed bool
	startedAt time.Time

	outbox   []notification
	flushing bool
}

// NewSession prepares an idle session for scenario. Nothing is scheduled
// until Start.
func NewSession(scenario *models.Scenario, timing Timing, clk clock.Clock, observer Observer, logger *logrus.Logger, metrics *metrics.Metrics) *Session {
	s := &Session{
		id:       uuid.New().String(),
		scenario: scenario,
		contents: make([][]rune, len(scenario.Turns)),
		timing:   timing,
		clk:      clk,
		observer: observer,
		logger:   logger,
		metrics:  metrics,
		phase:    models.PhaseIdle,
		revealed: make(map[string]int),
	}
	for i, turn := range scenario.Turns {
		s.contents[i] = []rune(turn.Content)
	}

	seed := timing.JitterSeed
	if seed == 0 {
		seed = clk.Now().UnixNano()
	}
	jitter := reveal.UniformJitter(rand.New(rand.NewSource(seed)), timing.JitterMax)

	s.timers = newTimerSet(clk, &s.mu, s.flush)
	s.reveal = reveal.New(s.timers, reveal.Config{
		WPM:    timing.WPM,
		Pause:  timing.Pause,
		Jitter: jitter,
	})
	s.typist = newInputTypist(s.timers, reveal.Config{
		WPM:        timing.WPM,
		Pause:      timing.Pause,
		StartDelay: timing.InputStartDelay,
		Jitter:     jitter,
	}, timing.InputSettle, s.inputProgressLocked, s.notifyChangeLocked, s.submitLocked)
	return s
}

// ID returns the session identity.
func (s *Session) ID() string {
	return s.id
}

// Scenario returns the scenario being played.
func (s *Session) Scenario() *models.Scenario {
	return s.scenario
}

// Start begins playback from the first turn. A live or finished session is
// fully reset first.
func (s *Session) Start() {
	s.mu.Lock()
	if s.live {
		s.logger.WithFields(s.fields()).Info("Restarting live playback session")
	}
	s.resetLocked()

	s.live = true
	s.startedAt = s.clk.Now()
	s.metrics.SessionsStarted.WithLabelValues(strconv.Itoa(s.scenario.ID)).Inc()
	s.metrics.SessionsActive.Inc()
	s.logger.WithFields(s.fields()).Info("Started playback session")

	if len(s.scenario.Turns) == 0 {
		s.finishLocked()
	} else {
		s.beginTurnLocked(0)
	}
	s.mu.Unlock()
	s.flush()
}

// Stop cancels every pending timer and returns the session to idle.
// Safe to call from any state, any number of times.
func (s *Session) Stop() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
	s.flush()
}

// Reset is Stop.
func (s *Session) Reset() {
	s.Stop()
}

// Snapshot returns the current rendered state.
func (s *Session) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Session) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// PendingTimers returns how many timers the session currently owns.
func (s *Session) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timers.count()
}

func (s *Session) resetLocked() {
	dirty := s.phase != models.PhaseIdle || s.cursor != 0 || len(s.revealed) > 0 || s.typist.Active()

	cancelled := s.timers.cancelAll()
	s.reveal.Stop()
	s.typist.Reset()

	if s.live {
		s.live = false
		s.metrics.SessionsActive.Dec()
	}
	s.phase = models.PhaseIdle
	s.cursor = 0
	s.revealed = make(map[string]int)
	s.typingFor = nil
	s.completed = false

	if dirty {
		s.logger.WithFields(s.fields()).WithField("cancelled_timers", cancelled).Debug("Reset playback session")
		s.notifyChangeLocked()
	}
}

func (s *Session) beginTurnLocked(index int) {
	s.cursor = index
	s.phase = models.PhasePreDelay
	turn := s.scenario.Turns[index]
	s.notifyChangeLocked()

	s.timers.AfterFunc(turn.PreDelay(s.timing.PreDelay), func() {
		s.afterPreDelayLocked(index)
	})
}

func (s *Session) afterPreDelayLocked(index int) {
	if !s.guardLocked(index, models.PhasePreDelay, "pre_delay") {
		return
	}
	turn := s.scenario.Turns[index]
	id := s.scenario.TurnID(index)

	switch {
	case turn.LocalInput && s.scenario.IsPointOfView(turn.Sender):
		s.phase = models.PhaseAwaitingInputSubmit
		s.notifyChangeLocked()
		if !s.typist.Begin(id, turn.Content, turn.PauseOffsets) {
			s.violationLocked("input_restart", logrus.Fields{"turn_id": id})
		}
	case s.needsIndicator(turn):
		s.phase = models.PhaseTypingIndicator
		s.typingFor = &models.TypingIndicator{Sender: turn.Sender, Role: turn.Role, TurnID: id}
		s.notifyChangeLocked()
		s.timers.AfterFunc(s.timing.TypingIndicator, func() {
			if !s.guardLocked(index, models.PhaseTypingIndicator, "typing_indicator") {
				return
			}
			s.typingFor = nil
			s.startRevealLocked(index)
		})
	default:
		s.startRevealLocked(index)
	}
}

// needsIndicator reports whether a typing indicator precedes turn: only remote
// participants who are not the system get one.
func (s *Session) needsIndicator(turn models.Turn) bool {
	return !s.scenario.IsPointOfView(turn.Sender) && turn.Role != models.RoleSystem
}

func (s *Session) startRevealLocked(index int) {
	turn := s.scenario.Turns[index]
	id := s.scenario.TurnID(index)

	s.phase = models.PhaseRevealing
	s.revealed[id] = 0
	s.reveal.Start(turn.Content, turn.PauseOffsets, func(_ string, length int) {
		s.revealed[id] = length
		if length > 0 {
			s.metrics.CharactersRevealed.Inc()
		}
		s.notifyChangeLocked()
	}, func() {
		if !s.guardLocked(index, models.PhaseRevealing, "reveal_done") {
			return
		}
		s.completeTurnLocked(index)
	})
}

func (s *Session) inputProgressLocked(length int) {
	if length > 0 {
		s.metrics.CharactersRevealed.Inc()
	}
	s.notifyChangeLocked()
}

// submitLocked is the typist's "message sent" signal. The typed turn becomes
// an outgoing bubble with its full content in the same step that clears the
// input box.
func (s *Session) submitLocked(ev models.LocalInputEvent) {
	index := s.cursor
	if ev.TurnID != s.scenario.TurnID(index) {
		s.violationLocked("submit_mismatch", logrus.Fields{"turn_id": ev.TurnID})
		return
	}
	if !s.guardLocked(index, models.PhaseAwaitingInputSubmit, "submit") {
		return
	}
	ev.SessionID = s.id
	s.metrics.LocalInputsSubmitted.Inc()
	s.outbox = append(s.outbox, notification{localInput: &ev})
	s.completeTurnLocked(index)
}

func (s *Session) completeTurnLocked(index int) {
	turn := s.scenario.Turns[index]
	id := s.scenario.TurnID(index)

	s.phase = models.PhaseTurnComplete
	s.revealed[id] = len(s.contents[index])
	s.metrics.TurnsRevealed.WithLabelValues(string(turn.Role)).Inc()

	s.logger.WithFields(s.fields()).WithFields(logrus.Fields{
		"turn_id": id,
		"sender":  turn.Sender,
	}).Debug("Turn revealed")

	if index+1 >= len(s.scenario.Turns) {
		s.cursor = index + 1
		s.finishLocked()
		return
	}
	s.beginTurnLocked(index + 1)
}

func (s *Session) finishLocked() {
	if s.completed {
		return
	}
	s.phase = models.PhaseComplete
	s.completed = true
	s.typingFor = nil
	if s.live {
		s.live = false
		s.metrics.SessionsActive.Dec()
	}
	s.metrics.SessionsCompleted.WithLabelValues(strconv.Itoa(s.scenario.ID)).Inc()
	s.metrics.SessionDuration.Observe(s.clk.Now().Sub(s.startedAt).Seconds())
	s.logger.WithFields(s.fields()).Info("Playback session complete")

	s.notifyChangeLocked()
	snap := s.snapshotLocked()
	s.outbox = append(s.outbox, notification{complete: true, snapshot: &snap})
}

// guardLocked checks that a scheduled step still belongs to the current turn
// and phase. Anything else is a scheduler defect: it is logged and the
// session is reset.
func (s *Session) guardLocked(index int, phase models.Phase, step string) bool {
	if s.live && s.cursor == index && s.phase == phase {
		return true
	}
	s.violationLocked(step, logrus.Fields{
		"expected_turn":  index,
		"expected_phase": phase,
	})
	return false
}

func (s *Session) violationLocked(kind string, fields logrus.Fields) {
	s.metrics.StateViolations.WithLabelValues(kind).Inc()
	s.logger.WithFields(s.fields()).WithFields(fields).WithField("violation", kind).Error("Playback state machine violation, resetting session")
	s.resetLocked()
}

func (s *Session) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		SessionID:    s.id,
		ScenarioID:   s.scenario.ID,
		ScenarioName: s.scenario.Name,
		Thread:       s.scenario.Thread,
		PointOfView:  s.scenario.PointOfView,
		Phase:        s.phase,
		Cursor:       s.cursor,
		Turns:        make([]models.TurnView, len(s.scenario.Turns)),
		Input:        s.typist.View(),
		IsLive:       s.live,
		IsComplete:   s.completed,
	}
	if s.typingFor != nil {
		indicator := *s.typingFor
		snap.TypingIndicator = &indicator
	}
	for i, turn := range s.scenario.Turns {
		id := s.scenario.TurnID(i)
		length, visible := s.revealed[id]
		snap.Turns[i] = models.TurnView{
			ID:               id,
			Sender:           turn.Sender,
			Role:             turn.Role,
			Kind:             turn.Kind,
			TimestampLabel:   turn.TimestampLabel,
			Outgoing:         s.scenario.IsPointOfView(turn.Sender),
			Visible:          visible,
			IsTyping:         visible && s.phase == models.PhaseRevealing && i == s.cursor,
			DisplayedContent: string(s.contents[i][:length]),
		}
	}
	return snap
}

func (s *Session) notifyChangeLocked() {
	if s.observer.Change == nil {
		return
	}
	snap := s.snapshotLocked()
	s.outbox = append(s.outbox, notification{snapshot: &snap})
}

// flush delivers queued notifications outside the lock. Only one goroutine
// delivers at a time; notifications queued meanwhile are picked up by it, so
// observers see them in the order they were produced.
func (s *Session) flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	for len(s.outbox) > 0 {
		batch := s.outbox
		s.outbox = nil
		s.mu.Unlock()
		for _, n := range batch {
			s.deliver(n)
		}
		s.mu.Lock()
	}
	s.flushing = false
	s.mu.Unlock()
}

func (s *Session) deliver(n notification) {
	switch {
	case n.localInput != nil:
		if s.observer.LocalInput != nil {
			s.observer.LocalInput(*n.localInput)
		}
	case n.complete:
		if s.observer.Complete != nil {
			s.observer.Complete(*n.snapshot)
		}
	case n.snapshot != nil:
		if s.observer.Change != nil {
			s.observer.Change(*n.snapshot)
		}
	}
}

func (s *Session) fields() logrus.Fields {
	return logrus.Fields{
		"session_id":  s.id,
		"scenario_id": s.scenario.ID,
		"phase":       s.phase,
		"cursor":      s.cursor,
	}
}
