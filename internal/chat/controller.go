// Package chat orchestrates a user turn: input validation, provider call,
// message persistence, and display, with cancellation of in-flight speech
// side effects. One Controller owns all mutable client state (active
// provider, busy flag, voice timer); nothing lives in package globals.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mathchat/mathchat/internal/config"
	"github.com/mathchat/mathchat/internal/provider"
	"github.com/mathchat/mathchat/internal/speech"
	"github.com/mathchat/mathchat/internal/store"
)

// State is the per-turn dispatch state.
type State int

const (
	StateIdle State = iota
	StateAwaitingReply
)

// ErrBusy is returned when a submit arrives while a reply is outstanding.
// Turns are serialized: the UI ignores the error and keeps the input intact.
var ErrBusy = errors.New("a reply is already pending")

// UI is the rendering collaborator. The controller owns data and flow; the
// UI owns layout and styling. All methods must be safe to call from the
// controller's goroutine.
type UI interface {
	// UserMessage and BotMessage display one newly appended message.
	UserMessage(text string)
	BotMessage(text string)

	// ErrorMessage displays a failure inside the conversation, visibly
	// distinct from a bot reply. Never persisted.
	ErrorMessage(text string)

	// LoadingStart / LoadingStop bracket the provider call.
	LoadingStart()
	LoadingStop()

	// SessionLoaded replaces the visible conversation with a session's
	// message sequence.
	SessionLoaded(sess *store.Session)

	// SessionsChanged invalidates the navigation list.
	SessionsChanged()

	// SetProviderLabel reflects the current provider selection.
	SetProviderLabel(id string)

	// AppendInput concatenates final transcript text into the pending
	// input buffer.
	AppendInput(text string)
}

// Controller drives the Idle -> AwaitingReply -> Idle state machine.
type Controller struct {
	mu    sync.Mutex
	state State

	cfg        *config.Config
	store      *store.Store
	registry   *provider.Registry
	ui         UI
	speaker    speech.Speaker
	recognizer speech.Recognizer
	logger     *slog.Logger

	providerID string
	ttsEnabled bool
	listening  bool

	timer      *AutoSubmitTimer
	autoSubmit func() // set by the UI; runs when the voice countdown expires
}

// New wires a controller. speaker and recognizer may be nil, which installs
// the null implementations.
func New(cfg *config.Config, st *store.Store, reg *provider.Registry, ui UI, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:        cfg,
		store:      st,
		registry:   reg,
		ui:         ui,
		speaker:    speech.NullSpeaker{},
		recognizer: speech.NewNullRecognizer(),
		logger:     logger,
		timer:      NewAutoSubmitTimer(time.Duration(cfg.Speech.AutoSendSeconds) * time.Second),
	}
}

// SetSpeaker replaces the TTS collaborator.
func (c *Controller) SetSpeaker(s speech.Speaker) {
	if s != nil {
		c.speaker = s
	}
}

// SetRecognizer replaces the speech-to-text collaborator.
func (c *Controller) SetRecognizer(r speech.Recognizer) {
	if r != nil {
		c.recognizer = r
	}
}

// SetAutoSubmit installs the UI callback fired by the voice countdown.
func (c *Controller) SetAutoSubmit(fn func()) { c.autoSubmit = fn }

// Bootstrap restores persisted state: resolves the provider selection
// (falling back to the first configured provider), repairs the active
// session pointer, and hands the initial session to the UI.
func (c *Controller) Bootstrap() error {
	pid := c.store.Provider()
	if !c.registry.Has(pid) {
		if pid != "" {
			c.logger.Warn("persisted provider not configured, falling back", "provider", pid)
		}
		pid = c.registry.First()
		if err := c.store.SetProvider(pid); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.providerID = pid
	c.mu.Unlock()

	sess, err := c.store.EnsureActive(c.cfg.Greeting)
	if err != nil {
		return err
	}

	c.ui.SetProviderLabel(pid)
	c.ui.SessionLoaded(sess)
	c.ui.SessionsChanged()
	return nil
}

// State returns the current dispatch state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProviderID returns the current provider selection.
func (c *Controller) ProviderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.providerID
}

// Submit runs one full user turn. Whitespace-only input is a no-op with no
// side effects. A submit while another is outstanding returns ErrBusy.
// Submit blocks for the provider call, so the UI invokes it off its event
// loop; every path ends back in StateIdle.
func (c *Controller) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateAwaitingReply
	pid := c.providerID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}()

	// Submitting cancels the voice countdown and both speech directions.
	c.timer.Cancel()
	c.stopVoice()
	c.speaker.Stop()

	sessID := c.store.ActiveID()

	p, err := c.registry.Get(pid)
	if err != nil {
		c.ui.ErrorMessage(err.Error())
		return nil
	}

	if err := c.store.AppendMessage(sessID, provider.RoleUser, text); err != nil {
		c.ui.ErrorMessage(err.Error())
		return nil
	}
	c.ui.UserMessage(text)
	c.ui.SessionsChanged() // title may have been derived

	c.ui.LoadingStart()
	reply, err := p.Complete(ctx, &provider.Request{
		UserText:     text,
		SystemPrompt: c.cfg.SystemPrompt,
	})
	c.ui.LoadingStop()

	if err != nil {
		// Failed turns never persist a bot message.
		c.logger.Warn("provider call failed", "provider", pid, "error", err)
		c.ui.ErrorMessage(userFacingMessage(err))
		return nil
	}

	if err := c.store.AppendMessage(sessID, provider.RoleBot, reply); err != nil {
		c.ui.ErrorMessage(err.Error())
		return nil
	}
	c.ui.BotMessage(reply)

	c.mu.Lock()
	tts := c.ttsEnabled
	c.mu.Unlock()
	if tts {
		c.speaker.Speak(speech.CleanForSpeech(reply), c.cfg.Speech.TTSLang)
	}
	return nil
}

// userFacingMessage maps the error taxonomy to what the conversation shows:
// upstream error text for a malformed payload, a generic connectivity line
// for transport failures.
func userFacingMessage(err error) string {
	var respErr *provider.ResponseError
	if errors.As(err, &respErr) {
		if respErr.Upstream != "" {
			return "API Error: " + respErr.Upstream
		}
		return "API Error"
	}
	return "网络错误"
}

// ── session navigation ────────────────────────────────────────────────────────

// NewChat starts a fresh session and displays it.
func (c *Controller) NewChat() error {
	sess, err := c.store.CreateSession(c.cfg.Greeting)
	if err != nil {
		return err
	}
	c.ui.SessionLoaded(sess)
	c.ui.SessionsChanged()
	return nil
}

// OpenSession activates the session with the given id. A dangling id falls
// back to creating a new session rather than leaving the display undefined.
func (c *Controller) OpenSession(id string) error {
	sess, err := c.store.LoadSession(id)
	if errors.Is(err, store.ErrSessionNotFound) {
		c.logger.Warn("session vanished, creating replacement", "id", id)
		return c.NewChat()
	}
	if err != nil {
		return err
	}
	c.ui.SessionLoaded(sess)
	c.ui.SessionsChanged()
	return nil
}

// DeleteSession removes a session and displays whichever session is active
// after pointer repair.
func (c *Controller) DeleteSession(id string) error {
	sess, err := c.store.DeleteSession(id, c.cfg.Greeting)
	if err != nil {
		return err
	}
	if sess != nil {
		c.ui.SessionLoaded(sess)
	}
	c.ui.SessionsChanged()
	return nil
}

// ClearAll wipes the history and starts over.
func (c *Controller) ClearAll() error {
	sess, err := c.store.ClearAll(c.cfg.Greeting)
	if err != nil {
		return err
	}
	c.ui.SessionLoaded(sess)
	c.ui.SessionsChanged()
	return nil
}

// ── provider + speech toggles ─────────────────────────────────────────────────

// CycleProvider advances to the next configured provider and persists the
// selection. Returns the new provider id.
func (c *Controller) CycleProvider() (string, error) {
	c.mu.Lock()
	next := c.registry.Next(c.providerID)
	c.providerID = next
	c.mu.Unlock()

	if err := c.store.SetProvider(next); err != nil {
		return next, err
	}
	c.ui.SetProviderLabel(next)
	return next, nil
}

// ToggleTTS flips speech playback and reports the new state. Disabling stops
// any in-progress playback.
func (c *Controller) ToggleTTS() bool {
	c.mu.Lock()
	c.ttsEnabled = !c.ttsEnabled
	on := c.ttsEnabled
	c.mu.Unlock()
	if !on {
		c.speaker.Stop()
	}
	return on
}

// ToggleVoice starts or stops speech recognition and reports whether it is
// listening afterwards. While listening, final transcripts feed the input
// buffer and arm the auto-submit countdown. When the transcript stream ends
// without Stop, the recognizer is restarted up to the configured cap; past
// the cap the user has to toggle again.
func (c *Controller) ToggleVoice() (bool, error) {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		c.stopVoice()
		return false, nil
	}
	c.listening = true
	c.mu.Unlock()

	if err := c.recognizer.Start(); err != nil {
		c.mu.Lock()
		c.listening = false
		c.mu.Unlock()
		return false, err
	}

	guard := speech.NewRestartGuard(c.cfg.Speech.MaxRestarts)
	go c.listenLoop(guard)
	return true, nil
}

func (c *Controller) listenLoop(guard *speech.RestartGuard) {
	for {
		for tr := range c.recognizer.Results() {
			if tr.Final {
				c.OnFinalTranscript(tr.Text)
			}
		}

		c.mu.Lock()
		active := c.listening
		c.mu.Unlock()
		if !active {
			return
		}
		if !guard.Allow() {
			c.logger.Warn("recognizer restart cap reached")
			c.mu.Lock()
			c.listening = false
			c.mu.Unlock()
			return
		}
		if err := c.recognizer.Start(); err != nil {
			c.logger.Warn("recognizer restart failed", "error", err)
			c.mu.Lock()
			c.listening = false
			c.mu.Unlock()
			return
		}
	}
}

// stopVoice stops recognition if it is running. Idempotent.
func (c *Controller) stopVoice() {
	c.mu.Lock()
	wasListening := c.listening
	c.listening = false
	c.mu.Unlock()
	if wasListening {
		c.recognizer.Stop()
	}
}

// Listening reports whether speech recognition is active.
func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// OnFinalTranscript concatenates recognized text into the pending input
// buffer and restarts the auto-submit countdown.
func (c *Controller) OnFinalTranscript(text string) {
	if text == "" {
		return
	}
	c.ui.AppendInput(text)
	if c.autoSubmit != nil {
		c.timer.Reset(c.autoSubmit)
	}
}

// CancelAutoSubmit stops the voice countdown (idempotent).
func (c *Controller) CancelAutoSubmit() { c.timer.Cancel() }
