package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pipelinewatch/internal/chat"
	"pipelinewatch/internal/feed"
	"pipelinewatch/internal/pipeline"
)

const (
	placeholderEvents     = "No events yet. Submit an event above to get started!"
	placeholderValidation = "Waiting for Agent 1 to validate events..."
	placeholderRedaction  = "Waiting for Agent 2 to redact sessions..."
	placeholderInsights   = "Waiting for Agent 3 to generate insights..."
	statusNotStarted      = "Not started"
)

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	okStatus    lipgloss.Style
	inputPanel  lipgloss.Style
	helpText    lipgloss.Style
	fieldLabel  lipgloss.Style
	fieldFocus  lipgloss.Style
	warning     lipgloss.Style
	modal       lipgloss.Style
	sender      map[chat.Sender]lipgloss.Style
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	bg := lipgloss.Color("#120924")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Background(pink).
			Foreground(lipgloss.Color("#22062f")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#2a184a")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		okStatus:    lipgloss.NewStyle().Foreground(mint).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		helpText:   lipgloss.NewStyle().Foreground(muted),
		fieldLabel: lipgloss.NewStyle().Foreground(blue),
		fieldFocus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		warning:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166")).Bold(true),
		modal: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(blue).
			Padding(1, 2),
		sender: map[chat.Sender]lipgloss.Style{
			chat.User:  lipgloss.NewStyle().Foreground(mint).Bold(true),
			chat.Agent: lipgloss.NewStyle().Foreground(pink).Bold(true),
		},
	}
}

func (m model) View() string {
	if m.quitConfirm {
		return m.theme.root.Render(m.renderQuitModal())
	}
	out := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderContent(),
		m.renderFooter(),
	)
	return m.theme.root.Render(out)
}

func (m *model) renderHeader() string {
	labels := [tabCount]string{"Dashboard", "Chat", "Submit Event", "Help"}
	segments := make([]string, 0, len(labels)+1)
	for i, label := range labels {
		style := m.theme.tabInactive
		if tabID(i) == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(label))
	}
	meta := " " + m.pushLabel()
	if !m.lastChange.IsZero() {
		meta += " · updated " + m.lastChange.Format("15:04:05")
	}
	segments = append(segments, m.theme.helpText.Render(meta))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func (m *model) pushLabel() string {
	if !m.pushEnabled {
		return "push: off · polling every cycle"
	}
	state, seen := m.app.pushState()
	switch {
	case !seen:
		return "push: connecting..."
	case state.Connected:
		return "push: live"
	default:
		return "push: down (" + compactSingleLine(state.Info, 60) + ")"
	}
}

func (m *model) contentSize() (int, int) {
	return maxInt(40, m.width-4), maxInt(8, m.height-9)
}

func (m *model) renderContent() string {
	contentWidth, contentHeight := m.contentSize()
	panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
	switch m.activeTab {
	case tabDashboard:
		return panel.Render(m.theme.panelTitle.Render("Pipeline") + "\n" + m.board.View())
	case tabChat:
		timeline := m.theme.panel.Width(contentWidth).Height(maxInt(5, contentHeight-3)).Render(
			m.theme.panelTitle.Render("Ask Agent 3") + "\n" + m.timeline.View(),
		)
		input := m.question.View()
		if m.app.chat.Pending() {
			input = m.spinner.View() + " thinking... " + input
		}
		return lipgloss.JoinVertical(lipgloss.Left, timeline, m.theme.inputPanel.Width(contentWidth).Render(input))
	case tabSubmit:
		return panel.Render(m.theme.panelTitle.Render("Submit Event") + "\n" + m.renderForm())
	case tabHelp:
		return panel.Render(m.theme.panelTitle.Render("Pipeline Dashboard Help") + "\n" + m.renderHelp())
	default:
		return ""
	}
}

func (m *model) renderFooter() string {
	contentWidth, _ := m.contentSize()
	statusStyle := m.theme.status
	lower := strings.ToLower(m.statusLine)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "error") {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(compactSingleLine(m.statusLine, 180))
	if notice, ok := m.app.feedback.Current(); ok {
		style := m.theme.okStatus
		if notice.IsError() {
			style = m.theme.errorStatus
		}
		line += "  " + style.Render(compactSingleLine(notice.Text, 120))
	}
	hints := m.theme.helpText.Render("Keys: Tab switch view · Ctrl+R refresh · Enter send/submit · PgUp/PgDn scroll · Esc quit prompt · Ctrl+C quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *model) renderQuitModal() string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.56), 32, 78)
	body := strings.Join([]string{
		m.theme.errorStatus.Render("QUIT DASHBOARD?"),
		m.theme.helpText.Render("The pipeline keeps running without this view."),
		"",
		m.theme.fieldFocus.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Return"),
	}, "\n")
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		m.theme.modal.Width(modalWidth).Render(body),
		lipgloss.WithWhitespaceBackground(lipgloss.Color("#120924")),
	)
}

func (m *model) resize() {
	contentWidth, _ := m.contentSize()
	m.question.Width = maxInt(20, contentWidth-8)
	m.form.setWidth(maxInt(20, contentWidth-30))
}

// renderPanes refreshes viewport contents from live state, keeping the scroll position
// unless the view was pinned to the bottom.
func (m *model) renderPanes() {
	contentWidth, contentHeight := m.contentSize()
	innerWidth := maxInt(20, contentWidth-4)

	prevBoardOffset := m.board.YOffset
	m.board.Width = innerWidth
	m.board.Height = maxInt(5, contentHeight-3)
	m.board.SetContent(m.renderDashboard(innerWidth))
	m.board.SetYOffset(prevBoardOffset)

	atBottom := m.timeline.AtBottom()
	prevTimelineOffset := m.timeline.YOffset
	m.timeline.Width = innerWidth
	m.timeline.Height = maxInt(3, contentHeight-6)
	m.timeline.SetContent(m.renderTimeline(innerWidth))
	if atBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevTimelineOffset)
	}
}

func (m *model) renderDashboard(width int) string {
	store := m.app.store
	sections := []string{
		m.section("Agent Status", renderStatus(store.Status())),
		m.section("Pipeline Stats", renderStats(store.Stats())),
		m.section("Recent Events", renderEvents(store.Events(), width)),
		m.section("Agent 1 · Validation", renderValidations(store.Validations(), width)),
		m.section("Agent 2 · Redaction", renderRedactions(store.Redactions(), width)),
		m.section("Agent 3 · Insights", m.renderInsights(store.Insights(), width)),
	}
	if len(m.logs) > 0 {
		recent := m.logs[maxInt(0, len(m.logs)-5):]
		sections = append(sections, m.section("Activity", m.theme.helpText.Render(strings.Join(recent, "\n"))))
	}
	return strings.Join(sections, "\n\n")
}

func (m *model) section(title, body string) string {
	return m.theme.fieldLabel.Render("▌"+title) + "\n" + body
}

func renderStatus(rec feed.Record[pipeline.AgentStatus]) string {
	agents := []struct {
		label string
		value string
	}{
		{"Agent 1 (Validation)", rec.Value.Agent1},
		{"Agent 2 (Redaction)", rec.Value.Agent2},
		{"Agent 3 (Insights)", rec.Value.Agent3},
	}
	lines := make([]string, 0, len(agents))
	for _, agent := range agents {
		lines = append(lines, fmt.Sprintf("%-22s %s", agent.label, nullCoalesce(agent.value, statusNotStarted)))
	}
	return strings.Join(lines, "\n")
}

func renderStats(rec feed.Record[pipeline.Stats]) string {
	if !rec.Loaded {
		return "loading..."
	}
	s := rec.Value
	return fmt.Sprintf("events %d · consent %d (%.1f%%) · redacted %d · issues %d",
		s.TotalEvents, s.ConsentCount, s.ConsentPercentage, s.RedactedCount, s.IssuesDetected)
}

func renderEvents(list feed.List[pipeline.EventRecord], width int) string {
	if len(list.Items) == 0 {
		return placeholderEvents
	}
	lines := make([]string, 0, len(list.Items))
	for _, e := range list.Items {
		line := fmt.Sprintf("%s #%d %s · %s · %s · consent %s · %s",
			shortTime(e.Timestamp), e.ID, e.SessionID, nullCoalesce(e.EventType, "-"),
			nullCoalesce(e.PageURL, "-"), checkMark(e.ConsentGiven.Value), nullCoalesce(e.UserEmail, "-"))
		lines = append(lines, truncate(line, width))
	}
	return strings.Join(lines, "\n")
}

func renderValidations(list feed.List[pipeline.ValidationResult], width int) string {
	if len(list.Items) == 0 {
		return placeholderValidation
	}
	lines := make([]string, 0, len(list.Items))
	for _, v := range list.Items {
		line := fmt.Sprintf("%s %-7s %s · %s", shortTime(v.Timestamp), v.ValidationStatus, v.SessionID, nullCoalesce(v.EventType, "-"))
		lines = append(lines, truncate(line, width))
		if len(v.Issues.Items) > 0 {
			lines = append(lines, wrapText("  issues: "+strings.Join(v.Issues.Items, "; "), width))
		}
	}
	return strings.Join(lines, "\n")
}

func renderRedactions(list feed.List[pipeline.RedactionResult], width int) string {
	if len(list.Items) == 0 {
		return placeholderRedaction
	}
	lines := make([]string, 0, len(list.Items))
	for _, r := range list.Items {
		line := fmt.Sprintf("%s %s · %s · email %s · ip %s · %d events",
			shortTime(r.Timestamp), r.SessionID, r.ComplianceStatus,
			nullCoalesce(r.UserEmailRedacted, "-"), nullCoalesce(r.IPAddressRedacted, "-"), r.EventCount)
		lines = append(lines, truncate(line, width))
		if len(r.RedactionLog.Items) > 0 {
			lines = append(lines, wrapText("  log: "+strings.Join(r.RedactionLog.Items, "; "), width))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderInsights(list feed.List[pipeline.Insight], width int) string {
	if len(list.Items) == 0 {
		return placeholderInsights
	}
	lines := make([]string, 0, len(list.Items))
	for _, in := range list.Items {
		line := wrapText(fmt.Sprintf("%s [%s] %s", shortTime(in.Timestamp), nullCoalesce(in.InsightType, "insight"), in.InsightText), width)
		if in.IsWarning() {
			line = m.theme.warning.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *model) renderTimeline(width int) string {
	messages := m.app.chat.Messages()
	if len(messages) == 0 {
		return m.theme.helpText.Render("Ask a question about the events, validations, redactions or insights.")
	}
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		label := "You"
		if msg.Sender == chat.Agent {
			label = "Agent 3"
		}
		head := m.theme.sender[msg.Sender].Render(label) + " " + m.theme.helpText.Render(msg.At.Local().Format("15:04:05"))
		body := wrapText(msg.Text, width)
		if msg.Placeholder {
			body = m.theme.helpText.Render(body)
		}
		blocks = append(blocks, head+"\n"+body)
	}
	return strings.Join(blocks, "\n\n")
}

func (m *model) renderForm() string {
	rows := make([]string, 0, fieldCount+2)
	for i := 0; i < fieldCount; i++ {
		labelStyle := m.theme.fieldLabel
		if m.form.focus == i && m.activeTab == tabSubmit {
			labelStyle = m.theme.fieldFocus
		}
		label := labelStyle.Render(padRight(fieldLabels[i], 26))
		var value string
		switch i {
		case fieldConsent:
			value = "[" + checkMark(m.form.consent) + "]"
		case fieldEncrypt:
			value = "[" + checkMark(m.form.encrypt) + "]"
		default:
			value = m.form.inputs[i].View()
		}
		rows = append(rows, label+value)
	}
	rows = append(rows, "")
	if m.submitting {
		rows = append(rows, m.spinner.View()+" submitting...")
	} else {
		rows = append(rows, m.theme.helpText.Render("Up/Down move · Space toggle · Enter or Ctrl+S submit"))
	}
	return strings.Join(rows, "\n")
}

func (m *model) renderHelp() string {
	lines := []string{
		"Views",
		"- Dashboard: agent status, stats, and the event, validation, redaction and insight feeds",
		"- Chat: ask Agent 3 about the pipeline; one question at a time",
		"- Submit Event: send a test event; Encrypt Email hashes the address before it is sent",
		"",
		"Keys",
		"- Tab / Shift+Tab: switch views",
		"- Ctrl+R: refresh every feed now",
		"- Dashboard: Up/Down, PgUp/PgDn, Home/End scroll",
		"- Chat: Enter sends, PgUp/PgDn scroll",
		"- Submit: Up/Down move, Space toggles, Enter or Ctrl+S submits",
		"- Esc: quit prompt · Ctrl+C: quit",
		"",
		"Updates",
		"- Feeds are polled every cycle and pushed by the server stream when it is up",
		"- Alert insights are highlighted",
		"",
		"Backend: " + m.app.baseURL,
	}
	return m.theme.helpText.Render(strings.Join(lines, "\n"))
}

func checkMark(v bool) string {
	return ternary(v, "✓", "✗")
}

func shortTime(value string) string {
	parsed, err := pipeline.ParseTimestamp(value)
	if err != nil {
		return "--:--:--"
	}
	return parsed.Local().Format("15:04:05")
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			wrapped = append(wrapped, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) <= width {
				current += " " + word
				continue
			}
			wrapped = append(wrapped, current)
			current = word
		}
		wrapped = append(wrapped, current)
	}
	return strings.Join(wrapped, "\n")
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func compactSingleLine(text string, limit int) string {
	return truncate(strings.Join(strings.Fields(text), " "), limit)
}

func padRight(text string, width int) string {
	if len(text) >= width {
		return text
	}
	return text + strings.Repeat(" ", width-len(text))
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func ternary[T any](condition bool, whenTrue T, whenFalse T) T {
	if condition {
		return whenTrue
	}
	return whenFalse
}
