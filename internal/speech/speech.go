// Package speech defines the text-to-speech and speech-to-text collaborators.
// The chat core only ever talks to these interfaces; platform backends (or
// the null implementations) are wired in at startup.
package speech

import "sync"

// Speaker plays back plain text. Speak is fire-and-forget; Stop cancels any
// in-progress playback and is safe to call at any time.
type Speaker interface {
	Speak(text, lang string)
	Stop()
}

// Transcript is one recognition event. The core consumes only final
// transcripts; partial results exist so a UI can preview them.
type Transcript struct {
	Text  string
	Final bool
}

// Recognizer streams transcript events. The Results channel closes when
// recognition ends, whether by Stop or by the backend going away; callers
// decide whether to restart.
type Recognizer interface {
	Start() error
	Stop()
	Results() <-chan Transcript
}

// RestartGuard caps recognizer restart attempts so an unavailable backend
// cannot spin in an infinite restart loop. After the cap is hit the user has
// to re-initiate recognition explicitly.
type RestartGuard struct {
	attempts int
	max      int
}

// NewRestartGuard allows max automatic restarts (3 when max <= 0).
func NewRestartGuard(max int) *RestartGuard {
	if max <= 0 {
		max = 3
	}
	return &RestartGuard{max: max}
}

// Allow reports whether another automatic restart is permitted.
func (g *RestartGuard) Allow() bool {
	if g.attempts >= g.max {
		return false
	}
	g.attempts++
	return true
}

// Reset clears the attempt counter, called on explicit user re-initiation.
func (g *RestartGuard) Reset() { g.attempts = 0 }

// NullSpeaker is the Speaker used when no TTS backend is available.
type NullSpeaker struct{}

func (NullSpeaker) Speak(string, string) {}
func (NullSpeaker) Stop()                {}

// NullRecognizer is a Recognizer that never produces results.
type NullRecognizer struct {
	mu     sync.Mutex
	ch     chan Transcript
	closed bool
}

func NewNullRecognizer() *NullRecognizer {
	return &NullRecognizer{ch: make(chan Transcript)}
}

func (n *NullRecognizer) Start() error { return nil }

func (n *NullRecognizer) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
}

func (n *NullRecognizer) Results() <-chan Transcript { return n.ch }
