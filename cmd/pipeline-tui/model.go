package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pipelinewatch/internal/chat"
	"pipelinewatch/internal/feed"
	"pipelinewatch/internal/push"
	"pipelinewatch/internal/submit"
)

type tabID int

const (
	tabDashboard tabID = iota
	tabChat
	tabSubmit
	tabHelp
	tabCount
)

type model struct {
	ctx context.Context
	app *app

	pushEnabled bool
	pushLogged  push.State
	live        bool
	lastChange  time.Time

	statusLine  string
	logs        []string
	activeTab   tabID
	submitting  bool
	quitConfirm bool

	width  int
	height int

	question textinput.Model
	form     eventForm
	board    viewport.Model
	timeline viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

type feedChangedMsg struct {
	kind feed.Kind
}

type pushStateMsg struct{}

type chatChangedMsg struct{}

type noticeChangedMsg struct{}

type chatDoneMsg struct {
	reply chat.Message
	err   error
}

type submitDoneMsg struct {
	outcome submit.Outcome
}

func newModel(ctx context.Context, a *app) model {
	question := textinput.New()
	question.Prompt = "❯ "
	question.CharLimit = 2000
	question.Placeholder = "Ask the insight agent about the pipeline..."

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	board := viewport.New(0, 0)
	board.MouseWheelEnabled = true
	board.MouseWheelDelta = 4
	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4

	return model{
		ctx:         ctx,
		app:         a,
		pushEnabled: a.channel != nil,
		statusLine:  "connecting to " + a.baseURL + "...",
		logs:        []string{},
		activeTab:   tabDashboard,
		question:    question,
		form:        newEventForm(),
		board:       board,
		timeline:    timeline,
		spinner:     sp,
		theme:       newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitInbound(m.app.inbound),
	)
}

func waitInbound(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m model) resolveCmd(turn *chat.Turn) tea.Cmd {
	ctx := m.ctx
	session := m.app.chat
	return func() tea.Msg {
		reply, err := session.Resolve(ctx, turn)
		return chatDoneMsg{reply: reply, err: err}
	}
}

func (m model) submitCmd(form submit.Form) tea.Cmd {
	ctx := m.ctx
	controller := m.app.submit
	return func() tea.Msg {
		return submitDoneMsg{outcome: controller.Submit(ctx, form)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case feedChangedMsg:
		m.lastChange = time.Now()
		if !m.live {
			m.live = true
			m.statusLine = "live · " + m.app.baseURL
		}
		m.renderPanes()
		cmds = append(cmds, waitInbound(m.app.inbound))
	case pushStateMsg:
		state, _ := m.app.pushState()
		if state.Connected != m.pushLogged.Connected {
			if state.Connected {
				m.appendLog("push stream connected")
			} else {
				m.appendLog("push stream down: " + state.Info)
			}
		}
		m.pushLogged = state
		cmds = append(cmds, waitInbound(m.app.inbound))
	case chatChangedMsg:
		m.renderPanes()
		cmds = append(cmds, waitInbound(m.app.inbound))
	case noticeChangedMsg:
		cmds = append(cmds, waitInbound(m.app.inbound))
	case chatDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, chat.ErrTurnResolved) {
			m.appendLog("chat failed: " + compactSingleLine(msg.err.Error(), 160))
			m.statusLine = "chat failed"
		} else if msg.err == nil {
			m.statusLine = "answer received"
		}
		m.renderPanes()
	case submitDoneMsg:
		m.submitting = false
		if msg.outcome.Success {
			m.form.load(msg.outcome.Form)
			m.statusLine = "event submitted"
		} else {
			m.statusLine = "submit failed"
		}
		m.appendLog(msg.outcome.Notice.Text)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.quitConfirm {
			break
		}
		var cmd tea.Cmd
		switch m.activeTab {
		case tabDashboard:
			m.board, cmd = m.board.Update(msg)
		case tabChat:
			m.timeline, cmd = m.timeline.Update(msg)
		}
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.quitConfirm {
		switch key {
		case "y", "Y", "enter":
			return m, tea.Quit
		case "n", "N", "esc":
			m.quitConfirm = false
			m.statusLine = "quit canceled"
		}
		return m, nil
	}

	switch key {
	case "esc":
		m.beginQuitConfirm()
		return m, nil
	case "tab":
		m.switchTab((m.activeTab + 1) % tabCount)
		return m, nil
	case "shift+tab":
		m.switchTab((m.activeTab + tabCount - 1) % tabCount)
		return m, nil
	case "ctrl+r":
		m.app.syncer.TriggerAll()
		m.statusLine = "refresh requested"
		m.appendLog("manual refresh")
		return m, nil
	}

	switch m.activeTab {
	case tabDashboard:
		switch key {
		case "q":
			m.beginQuitConfirm()
		case "pgup", "k", "up", "-", "ctrl+u":
			m.board.LineUp(4)
		case "pgdown", "j", "down", "+", "=", "ctrl+d":
			m.board.LineDown(4)
		case "home", "g":
			m.board.GotoTop()
		case "end", "G":
			m.board.GotoBottom()
		}
	case tabChat:
		switch key {
		case "enter":
			turn, err := m.app.chat.Begin(m.question.Value())
			switch {
			case errors.Is(err, chat.ErrEmptyQuestion):
				return m, nil
			case errors.Is(err, chat.ErrTurnPending):
				m.statusLine = "waiting for the previous answer"
				return m, nil
			case err != nil:
				m.logError(err)
				return m, nil
			}
			m.question.SetValue("")
			m.statusLine = "asking agent 3..."
			m.renderPanes()
			return m, m.resolveCmd(turn)
		case "pgup":
			m.timeline.LineUp(8)
			return m, nil
		case "pgdown":
			m.timeline.LineDown(8)
			return m, nil
		}
		var cmd tea.Cmd
		m.question, cmd = m.question.Update(msg)
		cmds = append(cmds, cmd)
	case tabSubmit:
		switch key {
		case "down", "ctrl+n":
			m.form.focusField(m.form.focus + 1)
			return m, nil
		case "up", "ctrl+p":
			m.form.focusField(m.form.focus - 1)
			return m, nil
		case " ":
			if m.form.onToggle() {
				m.form.toggle()
				return m, nil
			}
		case "enter", "ctrl+s":
			if m.form.onToggle() && key == "enter" {
				m.form.toggle()
				return m, nil
			}
			if m.submitting {
				return m, nil
			}
			m.submitting = true
			m.statusLine = "submitting event..."
			return m, m.submitCmd(m.form.value())
		}
		var cmd tea.Cmd
		m.form, cmd = m.form.update(msg)
		cmds = append(cmds, cmd)
	case tabHelp:
		if key == "q" {
			m.beginQuitConfirm()
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *model) switchTab(tab tabID) {
	m.activeTab = tab
	m.question.Blur()
	m.form.blur()
	switch tab {
	case tabChat:
		m.question.Focus()
	case tabSubmit:
		m.form.focusField(m.form.focus)
	}
	m.renderPanes()
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.statusLine = "ARE YOU SURE YOU WANT TO QUIT?"
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), compactSingleLine(trimmed, 220)))
	if len(m.logs) > 50 {
		m.logs = m.logs[len(m.logs)-50:]
	}
}

func (m *model) logError(err error) {
	if err == nil {
		return
	}
	m.appendLog("error: " + err.Error())
	m.statusLine = "error: " + compactSingleLine(err.Error(), 160)
}
