package app

import (
	"time"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/timer"
)

// PanicInterval is the tick cadence while a room is in panic mode.
const PanicInterval = 250 * time.Millisecond

// Panic is only allowed while more than this many seconds remain.
const (
	qcmPanicThreshold = 10
	qrlPanicThreshold = 20
)

// The scheduler operations below run on the room goroutine only.

// setTimer starts the room's ticker. It is a no-op while one is live or once
// the question has ended, and resumes from the preserved remaining time when
// the room is paused.
func (r *Room) setTimer() bool {
	if r.questionEnded {
		return false
	}
	wasPaused := r.timer.Paused()
	started := r.timer.Start()
	if started {
		r.log.Debug().Dur("interval", r.timer.Interval()).Bool("resumed", wasPaused).Msg("timer started")
	}
	r.checkExpired()
	return started
}

// resetTimer replaces any live ticker with a fresh one at delay.
func (r *Room) resetTimer(delay time.Duration) bool {
	r.tickInterval = delay
	started := r.timer.Reset(delay)
	r.log.Debug().Dur("interval", delay).Bool("started", started).Msg("timer reset")
	r.checkExpired()
	return started
}

// pauseTimer flips the paused state and reports the new value. An ended
// question has no countdown left to pause.
func (r *Room) pauseTimer() bool {
	if r.questionEnded {
		return false
	}
	if r.timer.Paused() {
		r.setTimer()
		r.broadcast(domain.Event{Type: domain.EventTimerResumed, Payload: r.tickPayload()})
		return false
	}
	r.timer.TogglePause()
	r.checkExpired()
	r.broadcast(domain.Event{Type: domain.EventTimerPaused, Payload: r.tickPayload()})
	return true
}

// panicTimer switches the room to the accelerated cadence when enough time
// remains for the question's type. Panic always un-pauses.
func (r *Room) panicTimer(remainingSeconds, questionIndex int) bool {
	var threshold int
	switch r.getQuestionType(questionIndex) {
	case domain.QuestionQCM:
		threshold = qcmPanicThreshold
	case domain.QuestionQRL:
		threshold = qrlPanicThreshold
	default:
		return false
	}
	if remainingSeconds <= threshold {
		return false
	}

	r.panicking = true
	r.resetTimer(PanicInterval)
	r.log.Info().Int("remaining", remainingSeconds).Msg("panic mode on")
	return true
}

func (r *Room) getQuestionType(questionIndex int) domain.QuestionType {
	if questionIndex < 0 || questionIndex >= len(r.stats.Questions) {
		return ""
	}
	return r.stats.Questions[questionIndex].Type
}

func (r *Room) onTick() {
	_, expired := r.timer.Tick()
	r.broadcast(domain.Event{Type: domain.EventTick, Payload: r.tickPayload()})
	if expired {
		r.expire()
	}
}

// checkExpired ends the question when a timer operation observed the
// deadline already passed.
func (r *Room) checkExpired() {
	if r.isStarted && !r.questionEnded && r.timer.State() == timer.Expired {
		r.expire()
	}
}

func (r *Room) expire() {
	if r.questionEnded {
		return
	}
	r.log.Debug().Int("question", r.currentQuestion).Msg("timer expired")
	r.broadcast(domain.Event{Type: domain.EventTimerExpired, Payload: r.tickPayload()})
	r.endQuestion()
}

func (r *Room) tickPayload() domain.TickPayload {
	return domain.TickPayload{
		RemainingSeconds: r.timer.RemainingSeconds(),
		IntervalMs:       r.tickInterval.Milliseconds(),
		Paused:           r.timer.Paused(),
		Panic:            r.panicking,
	}
}
