package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mathchat/mathchat/internal/config"
	"github.com/mathchat/mathchat/internal/provider"
	"github.com/mathchat/mathchat/internal/speech"
	"github.com/mathchat/mathchat/internal/store"
)

// fakeUI records controller callbacks for assertions.
type fakeUI struct {
	mu sync.Mutex

	userMsgs   []string
	botMsgs    []string
	errorMsgs  []string
	loading    int
	loadedSess *store.Session
	provider   string
	input      string
}

func (f *fakeUI) UserMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userMsgs = append(f.userMsgs, text)
}

func (f *fakeUI) BotMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.botMsgs = append(f.botMsgs, text)
}

func (f *fakeUI) ErrorMessage(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorMsgs = append(f.errorMsgs, text)
}

func (f *fakeUI) LoadingStart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading++
}

func (f *fakeUI) LoadingStop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading--
}

func (f *fakeUI) SessionLoaded(sess *store.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadedSess = sess
}

func (f *fakeUI) SessionsChanged() {}

func (f *fakeUI) SetProviderLabel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provider = id
}

func (f *fakeUI) AppendInput(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input += text
}

func (f *fakeUI) snapshot() fakeUI {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeUI{
		userMsgs:   append([]string(nil), f.userMsgs...),
		botMsgs:    append([]string(nil), f.botMsgs...),
		errorMsgs:  append([]string(nil), f.errorMsgs...),
		loading:    f.loading,
		loadedSess: f.loadedSess,
		provider:   f.provider,
		input:      f.input,
	}
}

// geminiStub serves the generateContent envelope. handler may be nil for a
// fixed success reply.
func geminiStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{
					{"content": map[string]any{"parts": []map[string]string{{"text": "the answer is $4$"}}}},
				},
			})
		}
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func newTestController(t *testing.T, srv *httptest.Server) (*Controller, *fakeUI, *store.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg, err := provider.NewRegistry([]provider.Descriptor{
		{ID: "gemini", Kind: provider.KindGemini, APIKey: "k", BaseURL: srv.URL},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	ui := &fakeUI{}
	c := New(cfg, st, reg, ui, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return c, ui, st
}

func TestBootstrap(t *testing.T) {
	c, ui, st := newTestController(t, geminiStub(t, nil))

	if c.ProviderID() != "gemini" {
		t.Errorf("expected provider gemini, got %q", c.ProviderID())
	}
	if st.Provider() != "gemini" {
		t.Errorf("expected provider selection persisted, got %q", st.Provider())
	}
	snap := ui.snapshot()
	if snap.loadedSess == nil {
		t.Fatal("expected initial session handed to UI")
	}
	if len(snap.loadedSess.Messages) != 1 {
		t.Errorf("expected greeting-only session, got %d messages", len(snap.loadedSess.Messages))
	}
}

func TestSubmit_FullTurn(t *testing.T) {
	c, ui, st := newTestController(t, geminiStub(t, nil))

	if err := c.Submit(context.Background(), "what is 2+2"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := ui.snapshot()
	if len(snap.userMsgs) != 1 || snap.userMsgs[0] != "what is 2+2" {
		t.Errorf("expected user message displayed, got %v", snap.userMsgs)
	}
	if len(snap.botMsgs) != 1 || snap.botMsgs[0] != "the answer is $4$" {
		t.Errorf("expected bot reply displayed, got %v", snap.botMsgs)
	}
	if snap.loading != 0 {
		t.Errorf("expected loading balanced, got %d", snap.loading)
	}
	if len(snap.errorMsgs) != 0 {
		t.Errorf("unexpected errors: %v", snap.errorMsgs)
	}

	sess, err := st.Get(st.ActiveID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Messages) != 3 {
		t.Fatalf("expected greeting + user + bot persisted, got %d", len(sess.Messages))
	}
	if sess.Messages[1].Role != provider.RoleUser || sess.Messages[2].Role != provider.RoleBot {
		t.Errorf("unexpected roles: %v %v", sess.Messages[1].Role, sess.Messages[2].Role)
	}
	if sess.Title != "what is 2+2" {
		t.Errorf("expected derived title, got %q", sess.Title)
	}
	if c.State() != StateIdle {
		t.Errorf("expected StateIdle after turn, got %v", c.State())
	}
}

func TestSubmit_WhitespaceNoOp(t *testing.T) {
	c, ui, st := newTestController(t, geminiStub(t, nil))

	if err := c.Submit(context.Background(), "   \n\t  "); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := ui.snapshot()
	if len(snap.userMsgs) != 0 || len(snap.botMsgs) != 0 || len(snap.errorMsgs) != 0 {
		t.Error("whitespace-only input must have no side effects")
	}
	sess, _ := st.Get(st.ActiveID())
	if len(sess.Messages) != 1 {
		t.Errorf("expected session untouched, got %d messages", len(sess.Messages))
	}
}

func TestSubmit_FailureNeverPersistsBotMessage(t *testing.T) {
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 403, "message": "quota exceeded"},
		})
	})
	c, ui, st := newTestController(t, srv)

	if err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := ui.snapshot()
	if len(snap.errorMsgs) != 1 || snap.errorMsgs[0] != "API Error: quota exceeded" {
		t.Errorf("expected upstream message surfaced, got %v", snap.errorMsgs)
	}
	if len(snap.botMsgs) != 0 {
		t.Errorf("expected no bot message on failure, got %v", snap.botMsgs)
	}

	sess, _ := st.Get(st.ActiveID())
	if len(sess.Messages) != 2 {
		t.Fatalf("expected greeting + user only, got %d", len(sess.Messages))
	}
	if sess.Messages[1].Role != provider.RoleUser {
		t.Errorf("expected the user message kept, got %v", sess.Messages[1].Role)
	}
	if c.State() != StateIdle {
		t.Errorf("expected StateIdle after failed turn, got %v", c.State())
	}
}

func TestSubmit_TransportFailureGenericMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections
	c, ui, _ := newTestController(t, srv)

	if err := c.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := ui.snapshot()
	if len(snap.errorMsgs) != 1 || snap.errorMsgs[0] != "网络错误" {
		t.Errorf("expected generic connectivity message, got %v", snap.errorMsgs)
	}
}

func TestSubmit_SerializedTurns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := geminiStub(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "slow reply"}}}},
			},
		})
	})
	c, _, _ := newTestController(t, srv)

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "first") }()

	<-started
	if err := c.Submit(context.Background(), "second"); err != ErrBusy {
		t.Errorf("expected ErrBusy while a reply is pending, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	// Idle again: a new turn goes through.
	if err := c.Submit(context.Background(), "third"); err != nil {
		t.Errorf("expected turn accepted after idle, got %v", err)
	}
}

func TestNewChatAndOpenSession(t *testing.T) {
	c, ui, st := newTestController(t, geminiStub(t, nil))
	first := st.ActiveID()

	if err := c.NewChat(); err != nil {
		t.Fatalf("NewChat: %v", err)
	}
	second := st.ActiveID()
	if second == first {
		t.Fatal("expected a fresh active session")
	}

	if err := c.OpenSession(first); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if st.ActiveID() != first {
		t.Errorf("expected active id %s, got %s", first, st.ActiveID())
	}
	if ui.snapshot().loadedSess.ID != first {
		t.Errorf("expected UI showing session %s", first)
	}
}

func TestOpenSession_DanglingFallsBackToNewChat(t *testing.T) {
	c, _, st := newTestController(t, geminiStub(t, nil))
	before := len(st.ListSessions())

	if err := c.OpenSession("4102444800000"); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if len(st.ListSessions()) != before+1 {
		t.Error("expected a replacement session created for a dangling id")
	}
}

func TestDeleteSession(t *testing.T) {
	c, ui, st := newTestController(t, geminiStub(t, nil))
	first := st.ActiveID()
	c.NewChat()

	if err := c.DeleteSession(st.ActiveID()); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if st.ActiveID() != first {
		t.Errorf("expected pointer repaired to %s, got %s", first, st.ActiveID())
	}
	if ui.snapshot().loadedSess.ID != first {
		t.Error("expected UI switched to the repaired session")
	}
}

func TestCycleProvider(t *testing.T) {
	srv := geminiStub(t, nil)

	cfg := config.DefaultConfig()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	reg, err := provider.NewRegistry([]provider.Descriptor{
		{ID: "gemini", Kind: provider.KindGemini, APIKey: "k", BaseURL: srv.URL},
		{ID: "deepseek", Kind: provider.KindOpenAI, APIKey: "k", BaseURL: srv.URL},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	ui := &fakeUI{}
	c := New(cfg, st, reg, ui, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	next, err := c.CycleProvider()
	if err != nil {
		t.Fatalf("CycleProvider: %v", err)
	}
	if next != "deepseek" {
		t.Errorf("expected deepseek, got %q", next)
	}
	if st.Provider() != "deepseek" {
		t.Errorf("expected selection persisted, got %q", st.Provider())
	}
	if ui.snapshot().provider != "deepseek" {
		t.Errorf("expected UI label updated, got %q", ui.snapshot().provider)
	}

	// Wraps around.
	if next, _ = c.CycleProvider(); next != "gemini" {
		t.Errorf("expected wrap to gemini, got %q", next)
	}
}

func TestBootstrap_StaleProviderFallsBack(t *testing.T) {
	srv := geminiStub(t, nil)

	cfg := config.DefaultConfig()
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	st.SetProvider("vanished")

	reg, _ := provider.NewRegistry([]provider.Descriptor{
		{ID: "gemini", Kind: provider.KindGemini, APIKey: "k", BaseURL: srv.URL},
	})

	c := New(cfg, st, reg, &fakeUI{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if c.ProviderID() != "gemini" {
		t.Errorf("expected fallback to gemini, got %q", c.ProviderID())
	}
	if st.Provider() != "gemini" {
		t.Errorf("expected fallback persisted, got %q", st.Provider())
	}
}

// fakeRecognizer serves one scripted transcript stream per Start call and
// closes it, simulating a backend that ends on its own. When the scripts run
// out, Start fails, unless endless is set (every stream empty).
type fakeRecognizer struct {
	mu      sync.Mutex
	scripts [][]speech.Transcript
	endless bool
	starts  int
	ch      chan speech.Transcript
}

func (f *fakeRecognizer) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var script []speech.Transcript
	if !f.endless {
		if f.starts >= len(f.scripts) {
			return errBackendGone
		}
		script = f.scripts[f.starts]
	}
	f.starts++

	f.ch = make(chan speech.Transcript, len(script)+1)
	for _, tr := range script {
		f.ch <- tr
	}
	close(f.ch)
	return nil
}

func (f *fakeRecognizer) Stop() {}

func (f *fakeRecognizer) Results() <-chan speech.Transcript {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch
}

func (f *fakeRecognizer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

var errBackendGone = errors.New("speech backend unavailable")

func TestToggleVoice_FeedsTranscripts(t *testing.T) {
	c, ui, _ := newTestController(t, geminiStub(t, nil))
	rec := &fakeRecognizer{scripts: [][]speech.Transcript{{
		{Text: "解方程", Final: true},
		{Text: "preview", Final: false},
	}}}
	c.SetRecognizer(rec)

	on, err := c.ToggleVoice()
	if err != nil {
		t.Fatalf("ToggleVoice: %v", err)
	}
	if !on {
		t.Fatal("expected listening after toggle")
	}

	deadline := time.After(time.Second)
	for ui.snapshot().input == "" {
		select {
		case <-deadline:
			t.Fatal("expected final transcript appended to input")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := ui.snapshot().input; got != "解方程" {
		t.Errorf("expected only final transcripts forwarded, got %q", got)
	}
}

func TestToggleVoice_RestartCapped(t *testing.T) {
	c, _, _ := newTestController(t, geminiStub(t, nil))
	rec := &fakeRecognizer{endless: true} // every stream ends immediately
	c.SetRecognizer(rec)

	if _, err := c.ToggleVoice(); err != nil {
		t.Fatalf("ToggleVoice: %v", err)
	}

	deadline := time.After(time.Second)
	for c.Listening() {
		select {
		case <-deadline:
			t.Fatal("expected listening to end after restart cap")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Initial start plus at most MaxRestarts automatic restarts.
	if got := rec.startCount(); got != 4 {
		t.Errorf("expected 1 start + 3 restarts, got %d", got)
	}
}

func TestToggleVoice_ToggleOffStopsListening(t *testing.T) {
	c, _, _ := newTestController(t, geminiStub(t, nil))

	// NullRecognizer blocks until stopped.
	if on, err := c.ToggleVoice(); err != nil || !on {
		t.Fatalf("ToggleVoice on: %v %v", on, err)
	}
	if on, err := c.ToggleVoice(); err != nil || on {
		t.Fatalf("ToggleVoice off: %v %v", on, err)
	}
	if c.Listening() {
		t.Error("expected not listening after toggle off")
	}
}

func TestOnFinalTranscript(t *testing.T) {
	c, ui, _ := newTestController(t, geminiStub(t, nil))
	c.timer = NewAutoSubmitTimer(20 * time.Millisecond)

	fired := make(chan struct{}, 1)
	c.SetAutoSubmit(func() { fired <- struct{}{} })

	c.OnFinalTranscript("解方程 ")
	c.OnFinalTranscript("x^2=4")

	if got := ui.snapshot().input; got != "解方程 x^2=4" {
		t.Errorf("expected transcript concatenated, got %q", got)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected auto-submit countdown to fire")
	}
}

func TestCancelAutoSubmit_StopsCountdown(t *testing.T) {
	c, _, _ := newTestController(t, geminiStub(t, nil))
	c.timer = NewAutoSubmitTimer(30 * time.Millisecond)

	fired := make(chan struct{}, 1)
	c.SetAutoSubmit(func() { fired <- struct{}{} })

	c.OnFinalTranscript("解方程 x^2=4")
	c.CancelAutoSubmit()

	select {
	case <-fired:
		t.Fatal("canceled countdown must not fire")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestOnFinalTranscript_EmptyIgnored(t *testing.T) {
	c, ui, _ := newTestController(t, geminiStub(t, nil))
	c.timer = NewAutoSubmitTimer(20 * time.Millisecond)

	armed := make(chan struct{}, 1)
	c.SetAutoSubmit(func() { armed <- struct{}{} })

	c.OnFinalTranscript("")
	if got := ui.snapshot().input; got != "" {
		t.Errorf("expected input untouched, got %q", got)
	}
	select {
	case <-armed:
		t.Fatal("empty transcript must not arm the countdown")
	case <-time.After(100 * time.Millisecond):
	}
}
