package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mathchat/mathchat/internal/mathdown"
	"github.com/mathchat/mathchat/internal/provider"
	"github.com/mathchat/mathchat/internal/store"
)

// ---------- messages sent from the controller goroutine via program.Send() ----------

type userMsg struct{ text string }
type botMsg struct{ text string }
type errorMsg struct{ text string }
type loadingMsg struct{ on bool }
type sessionLoadedMsg struct{ sess *store.Session }
type sessionsChangedMsg struct{}
type providerMsg struct{ id string }
type appendInputMsg struct{ text string }
type autoSubmitMsg struct{}
type submitDoneMsg struct{ err error }
type ttsMsg struct{ on bool }
type voiceMsg struct{ on bool }

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	botLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("120")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// ---------- Model ----------

const statusBarHeight = 1
const inputHeight = 1

// Model is the bubbletea model for the chat view. It owns presentation only:
// conversation data lives in the store, flow in the controller.
type Model struct {
	viewport  viewport.Model
	textinput textinput.Model
	spinner   spinner.Model
	width     int
	height    int

	content []string // accumulated rendered conversation lines
	loading bool     // a provider call is in flight

	providerID   string
	sessionTitle string
	msgCount     int
	ttsOn        bool
	voiceOn      bool

	sessions []store.SessionInfo

	// callbacks into the application layer
	submitFn     func(text string) tea.Cmd
	listFn       func() []store.SessionInfo
	newChatFn    func()
	openFn       func(id string)
	deleteFn     func(id string)
	cycleFn      func()
	ttsFn        func()
	voiceFn      func()
	cancelAutoFn func()

	quitting bool
}

// Callbacks wires the model to the dispatch controller.
type Callbacks struct {
	Submit  func(text string) tea.Cmd
	List    func() []store.SessionInfo
	NewChat func()
	Open    func(id string)
	Delete  func(id string)
	Cycle   func()
	TTS     func()
	Voice   func()

	// CancelAuto stops a pending voice auto-submit countdown.
	CancelAuto func()
}

// NewModel creates the initial chat model.
func NewModel(cb Callbacks) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "输入指令..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 24)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		viewport:     vp,
		textinput:    ti,
		spinner:      sp,
		submitFn:     cb.Submit,
		listFn:       cb.List,
		newChatFn:    cb.NewChat,
		openFn:       cb.Open,
		deleteFn:     cb.Delete,
		cycleFn:      cb.Cycle,
		ttsFn:        cb.TTS,
		voiceFn:      cb.Voice,
		cancelAutoFn: cb.CancelAuto,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - statusBarHeight - inputHeight
		if vpHeight < 1 {
			vpHeight = 1
		}
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight
		m.textinput.Width = m.width - 4 // account for prompt
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoBottom()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loading {
			m.viewport.SetContent(m.renderContent())
			m.viewport.GotoBottom()
		}
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m, m.submitInput()

		case "ctrl+n":
			if m.loading {
				return m, nil
			}
			return m, doCmd(m.newChatFn)

		case "ctrl+p":
			return m, doCmd(m.cycleFn)

		case "ctrl+t":
			return m, doCmd(m.ttsFn)

		case "ctrl+r":
			return m, doCmd(m.voiceFn)

		case "esc":
			// Editing or dismissing a transcript aborts the countdown.
			return m, doCmd(m.cancelAutoFn)

		case "ctrl+o":
			// Cycle to the next session in display order.
			if m.openFn == nil || m.loading {
				return m, nil
			}
			next := m.nextSessionID()
			if next == "" {
				return m, nil
			}
			return m, doCmd(func() { m.openFn(next) })

		case "ctrl+x":
			// Delete the active session; the controller repairs the pointer.
			if m.deleteFn == nil || m.loading {
				return m, nil
			}
			id := m.activeSessionID()
			if id == "" {
				return m, nil
			}
			return m, doCmd(func() { m.deleteFn(id) })
		}

		var cmd tea.Cmd
		m.textinput, cmd = m.textinput.Update(msg)
		cmds = append(cmds, cmd)

	// ---------- custom messages from the controller ----------

	case userMsg:
		m.appendLine(userStyle.Render("你: ") + msg.text)
		m.msgCount++

	case botMsg:
		m.appendLine(botLabelStyle.Render("核心:"))
		m.appendLine(mathdown.RenderTerminal(msg.text, m.contentWidth()))
		m.msgCount++

	case errorMsg:
		m.appendLine(errorStyle.Render("⚠ " + msg.text))

	case loadingMsg:
		m.loading = msg.on

	case sessionLoadedMsg:
		m.content = nil
		m.sessionTitle = msg.sess.Title
		m.msgCount = len(msg.sess.Messages)
		for _, message := range msg.sess.Messages {
			if message.Role == provider.RoleUser {
				m.appendLine(userStyle.Render("你: ") + message.Text)
			} else {
				m.appendLine(botLabelStyle.Render("核心:"))
				m.appendLine(mathdown.RenderTerminal(message.Text, m.contentWidth()))
			}
		}

	case sessionsChangedMsg:
		if m.listFn != nil {
			m.sessions = m.listFn()
			for _, info := range m.sessions {
				if info.IsActive {
					m.sessionTitle = info.Title
					break
				}
			}
		}

	case providerMsg:
		m.providerID = msg.id

	case ttsMsg:
		m.ttsOn = msg.on

	case voiceMsg:
		m.voiceOn = msg.on

	case appendInputMsg:
		cur := m.textinput.Value()
		if cur == "" {
			m.textinput.SetValue(msg.text)
		} else {
			m.textinput.SetValue(cur + msg.text)
		}
		m.textinput.CursorEnd()

	case autoSubmitMsg:
		return m, m.submitInput()

	case submitDoneMsg:
		// Errors were already displayed by the controller; nothing to do.
	}

	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoBottom()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

// submitInput hands the input buffer to the controller. While a reply is
// outstanding the input stays untouched: turns are serialized, not queued.
func (m *Model) submitInput() tea.Cmd {
	if m.loading || m.submitFn == nil {
		return nil
	}
	text := m.textinput.Value()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	m.textinput.SetValue("")
	return m.submitFn(text)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	// Status bar
	var sb strings.Builder
	sb.WriteString(" " + m.providerID)
	if m.sessionTitle != "" {
		sb.WriteString(" │ " + m.sessionTitle)
	}
	if m.msgCount > 0 {
		sb.WriteString(fmt.Sprintf(" │ %d 条", m.msgCount))
	}
	if m.ttsOn {
		sb.WriteString(" │ 朗读: 开")
	}
	if m.voiceOn {
		sb.WriteString(" │ 语音: 开")
	}
	sb.WriteString(helpStyle.Render("  ·  ^N 新会话 ^O 切换 ^X 删除 ^P 模型 ^T 朗读 ^R 语音"))
	bar := statusBarStyle.Width(m.width).Render(sb.String())

	return m.viewport.View() + "\n" + bar + "\n" + m.textinput.View()
}

// renderContent appends the loading spinner to the conversation while a
// provider call is in flight.
func (m *Model) renderContent() string {
	base := strings.Join(m.content, "\n")
	if m.loading {
		return base + "\n" + m.spinner.View() + " 思考中..."
	}
	return base
}

// ---------- helpers ----------

// doCmd runs fn on bubbletea's command pool, keeping controller calls (which
// may Send messages back) off the update loop.
func doCmd(fn func()) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m *Model) appendLine(text string) {
	m.content = append(m.content, text)
}

func (m *Model) contentWidth() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

func (m *Model) activeSessionID() string {
	for _, info := range m.sessions {
		if info.IsActive {
			return info.ID
		}
	}
	return ""
}

// nextSessionID returns the session after the active one in display order,
// wrapping around. Empty when there is at most one session.
func (m *Model) nextSessionID() string {
	if len(m.sessions) < 2 {
		return ""
	}
	for i, info := range m.sessions {
		if info.IsActive {
			return m.sessions[(i+1)%len(m.sessions)].ID
		}
	}
	return m.sessions[0].ID
}
