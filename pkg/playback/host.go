package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/constants"
	"chat-playback-engine/pkg/metrics"
	"chat-playback-engine/pkg/models"
	"chat-playback-engine/pkg/scenarios"
)

// EventSink receives lifecycle events for attribution. Publish must not block.
type EventSink interface {
	Publish(event models.PlaybackEvent)
}

// HostConfig configures one demo slot.
type HostConfig struct {
	Slot         string
	InstanceID   string
	Timing       Timing
	AutoAdvance  bool
	AdvanceDelay time.Duration
}

// DefaultHostConfig returns a looping slot with the demo cadence.
func DefaultHostConfig(slot string) HostConfig {
	return HostConfig{
		Slot:         slot,
		Timing:       DefaultTiming(),
		AutoAdvance:  true,
		AdvanceDelay: constants.DefaultAdvanceDelayMS * time.Millisecond,
	}
}

// Update is delivered to subscribers. Exactly one field is set. NoScenario
// reports that the slot stopped showing anything.
type Update struct {
	Snapshot   *models.Snapshot
	LocalInput *models.LocalInputEvent
	NoScenario bool
}

// HostState describes what a slot is showing.
type HostState struct {
	Slot          string `json:"slot"`
	ScenarioIndex int    `json:"scenario_index"`
	Active        bool   `json:"active"`
	HasScenario   bool   `json:"has_scenario"`
	SessionID     string `json:"session_id,omitempty"`
}

// Host drives playback for one demo slot. At most one session is live at a
// time: selecting a scenario tears the previous session down synchronously
// before the next one is created.
type Host struct {
	cfg     HostConfig
	catalog *scenarios.Catalog
	clk     clock.Clock
	sink    EventSink
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	gen     atomic.Uint64
	index   int
	active  bool
	session *Session

	advMu   sync.Mutex
	advance clock.Timer

	subMu  sync.Mutex
	subID  uint64
	subs   map[uint64]chan Update
	latest *models.Snapshot
}

// NewHost creates an inactive slot.
func NewHost(cfg HostConfig, catalog *scenarios.Catalog, clk clock.Clock, sink EventSink, logger *logrus.Logger, metrics *metrics.Metrics) *Host {
	return &Host{
		cfg:     cfg,
		catalog: catalog,
		clk:     clk,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		subs:    make(map[uint64]chan Update),
	}
}

// Slot returns the slot name.
func (h *Host) Slot() string {
	return h.cfg.Slot
}

// Activate plays the scenario at index from the start.
func (h *Host) Activate(index int) bool {
	return h.Select(index, true)
}

// Deactivate stops playback and clears the slot.
func (h *Host) Deactivate() {
	h.Select(h.State().ScenarioIndex, false)
}

// Select applies the host's scenario index and visibility. An active
// selection always restarts from the first turn. It returns false when index
// does not name a scenario, in which case nothing plays.
func (h *Host) Select(index int, active bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selectLocked(index, active)
}

func (h *Host) selectLocked(index int, active bool) bool {
	gen := h.nextGen()
	h.cancelAdvance()
	h.teardownLocked()

	h.index = index
	h.active = active
	if !active {
		h.clearLatest()
		return true
	}

	scenario, ok := h.catalog.Get(index)
	if !ok {
		h.logger.WithFields(logrus.Fields{
			"slot":           h.cfg.Slot,
			"scenario_index": index,
			"scenarios":      h.catalog.Len(),
		}).Warn("Scenario index out of range, nothing to play")
		h.clearLatest()
		return false
	}

	h.session = NewSession(scenario, h.cfg.Timing, h.clk, h.observer(gen, scenario), h.logger, h.metrics)
	h.session.Start()
	h.publish(models.EventShown, h.session, "")
	return true
}

// teardownLocked stops the current session. Stop cancels every timer of the
// session before it returns, so the next session starts from a clean slate.
func (h *Host) teardownLocked() {
	if h.session == nil {
		return
	}
	wasLive := h.session.IsLive()
	h.session.Stop()
	if wasLive {
		h.publish(models.EventStopped, h.session, "")
	}
	h.session = nil
}

func (h *Host) observer(gen uint64, scenario *models.Scenario) Observer {
	return Observer{
		Change: func(snap models.Snapshot) {
			h.subMu.Lock()
			defer h.subMu.Unlock()
			if h.gen.Load() != gen {
				return
			}
			h.latest = &snap
			h.broadcastLocked(Update{Snapshot: &snap})
		},
		LocalInput: func(ev models.LocalInputEvent) {
			if h.gen.Load() != gen {
				return
			}
			h.sinkPublish(models.PlaybackEvent{
				Type:         models.EventLocalInput,
				SessionID:    ev.SessionID,
				ScenarioID:   scenario.ID,
				ScenarioName: scenario.Name,
				TurnID:       ev.TurnID,
			})
			h.subMu.Lock()
			defer h.subMu.Unlock()
			if h.gen.Load() == gen {
				h.broadcastLocked(Update{LocalInput: &ev})
			}
		},
		Complete: func(snap models.Snapshot) {
			if h.gen.Load() != gen {
				return
			}
			h.sinkPublish(models.PlaybackEvent{
				Type:         models.EventCompleted,
				SessionID:    snap.SessionID,
				ScenarioID:   snap.ScenarioID,
				ScenarioName: snap.ScenarioName,
			})
			if h.cfg.AutoAdvance {
				h.scheduleAdvance(gen)
			}
		},
	}
}

func (h *Host) scheduleAdvance(gen uint64) {
	h.advMu.Lock()
	defer h.advMu.Unlock()
	if h.advance != nil {
		h.advance.Stop()
	}
	h.advance = h.clk.AfterFunc(h.cfg.AdvanceDelay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.gen.Load() != gen || !h.active {
			return
		}
		next := 0
		if h.catalog.Len() > 0 {
			next = (h.index + 1) % h.catalog.Len()
		}
		h.logger.WithFields(logrus.Fields{
			"slot":           h.cfg.Slot,
			"scenario_index": next,
		}).Debug("Advancing to next scenario")
		h.selectLocked(next, true)
	})
}

func (h *Host) cancelAdvance() {
	h.advMu.Lock()
	defer h.advMu.Unlock()
	if h.advance != nil {
		h.advance.Stop()
		h.advance = nil
	}
}

// Snapshot returns the rendered state of the slot, false when nothing plays.
func (h *Host) Snapshot() (models.Snapshot, bool) {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()
	if session == nil {
		return models.Snapshot{}, false
	}
	return session.Snapshot(), true
}

// State returns the slot's selection.
func (h *Host) State() HostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := HostState{
		Slot:          h.cfg.Slot,
		ScenarioIndex: h.index,
		Active:        h.active,
		HasScenario:   h.session != nil,
	}
	if h.session != nil {
		st.SessionID = h.session.ID()
	}
	return st
}

// Subscribe returns a channel of updates, primed with the latest snapshot.
// When the subscriber falls behind, the oldest queued update is dropped.
func (h *Host) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)

	h.subMu.Lock()
	h.subID++
	id := h.subID
	h.subs[id] = ch
	if h.latest != nil {
		snap := *h.latest
		ch <- Update{Snapshot: &snap}
	}
	h.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.subMu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
			h.subMu.Unlock()
		})
	}
}

// Close stops playback and closes every subscription.
func (h *Host) Close() {
	h.mu.Lock()
	h.nextGen()
	h.cancelAdvance()
	h.teardownLocked()
	h.active = false
	h.mu.Unlock()

	h.subMu.Lock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.latest = nil
	h.subMu.Unlock()
}

// nextGen retires every observer of the current session. It holds subMu so
// an observer that already passed its gen check finishes delivering first.
func (h *Host) nextGen() uint64 {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	return h.gen.Add(1)
}

func (h *Host) clearLatest() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	h.latest = nil
	h.broadcastLocked(Update{NoScenario: true})
}

func (h *Host) broadcastLocked(u Update) {
	for _, ch := range h.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}

func (h *Host) publish(typ models.EventType, session *Session, turnID string) {
	sc := session.Scenario()
	h.sinkPublish(models.PlaybackEvent{
		Type:         typ,
		SessionID:    session.ID(),
		ScenarioID:   sc.ID,
		ScenarioName: sc.Name,
		TurnID:       turnID,
	})
}

func (h *Host) sinkPublish(ev models.PlaybackEvent) {
	if h.sink == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.Slot = h.cfg.Slot
	ev.InstanceID = h.cfg.InstanceID
	ev.OccurredAt = h.clk.Now()
	h.sink.Publish(ev)
}
