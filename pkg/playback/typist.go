package playback

import (
	"time"

	"chat-playback-engine/pkg/clock"
	"chat-playback-engine/pkg/models"
	"chat-playback-engine/pkg/reveal"
)

// InputTypist types the local user's turns into the simulated outbound input
// box and "sends" them. It runs one turn at a time and never restarts a turn
// it has already typed. The submitted signal goes straight to the scheduler.
type InputTypist struct {
	sched  clock.Scheduler
	reveal *reveal.Timer
	settle time.Duration

	onProgress func(length int)
	onSending  func()
	onSubmit   func(models.LocalInputEvent)

	activeTurn string
	lastTurn   string
	content    string
	display    string
	sending    bool
	settling   clock.Timer
}

func newInputTypist(sched clock.Scheduler, cfg reveal.Config, settle time.Duration, onProgress func(int), onSending func(), onSubmit func(models.LocalInputEvent)) *InputTypist {
	return &InputTypist{
		sched:      sched,
		reveal:     reveal.New(sched, cfg),
		settle:     settle,
		onProgress: onProgress,
		onSending:  onSending,
		onSubmit:   onSubmit,
	}
}

// Begin starts typing content for turnID. It returns false when a run is
// already active or turnID was typed before.
func (it *InputTypist) Begin(turnID, content string, pauses []int) bool {
	if it.activeTurn != "" || it.lastTurn == turnID {
		return false
	}
	it.activeTurn = turnID
	it.lastTurn = turnID
	it.content = content
	it.display = ""
	it.sending = false

	it.reveal.Start(content, pauses, func(prefix string, length int) {
		it.display = prefix
		if it.onProgress != nil {
			it.onProgress(length)
		}
	}, it.typed)
	return true
}

func (it *InputTypist) typed() {
	it.sending = true
	if it.onSending != nil {
		it.onSending()
	}
	turnID, content := it.activeTurn, it.content
	it.settling = it.sched.AfterFunc(it.settle, func() {
		it.settling = nil
		it.display = ""
		it.sending = false
		it.activeTurn = ""
		it.onSubmit(models.LocalInputEvent{TurnID: turnID, Content: content})
	})
}

// Active reports whether a turn is being typed or sent.
func (it *InputTypist) Active() bool {
	return it.activeTurn != ""
}

// Reset cancels any run and forgets which turns were typed.
func (it *InputTypist) Reset() {
	it.reveal.Stop()
	if it.settling != nil {
		it.settling.Stop()
		it.settling = nil
	}
	it.activeTurn = ""
	it.lastTurn = ""
	it.content = ""
	it.display = ""
	it.sending = false
}

// View returns the rendered input box.
func (it *InputTypist) View() models.InputView {
	return models.InputView{
		TurnID:  it.activeTurn,
		Content: it.display,
		Active:  it.activeTurn != "",
		Sending: it.sending,
	}
}
