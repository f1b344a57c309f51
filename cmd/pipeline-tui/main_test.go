package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pipelinewatch/internal/chat"
	"pipelinewatch/internal/feed"
	"pipelinewatch/internal/pipeline"
	"pipelinewatch/internal/push"
	"pipelinewatch/internal/submit"
)

type blockingAsker struct {
	release chan struct{}
}

func (b blockingAsker) Ask(ctx context.Context, question string) (string, error) {
	select {
	case <-b.release:
		return "answer to " + question, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type stubSubmitter struct {
	resp pipeline.SubmitResponse
	err  error
}

func (s stubSubmitter) SubmitEvent(ctx context.Context, event pipeline.Event) (pipeline.SubmitResponse, error) {
	return s.resp, s.err
}

func newTestApp(asker chat.Asker, submitter submit.Submitter) *app {
	a := &app{
		baseURL: "http://127.0.0.1:5000",
		store:   feed.NewStore(),
		chat:    chat.NewSession(asker),
		inbound: make(chan tea.Msg, 8),
	}
	a.feedback = submit.NewFeedback(time.Hour, nil)
	a.submit = submit.NewController(submitter, nil, submit.WithFeedback(a.feedback))
	return a
}

func key(k tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: k}
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return updated.(model)
}

func TestRenderPlaceholdersForUnloadedAndEmptyFeeds(t *testing.T) {
	unloaded := feed.List[pipeline.EventRecord]{}
	empty := feed.List[pipeline.EventRecord]{Items: []pipeline.EventRecord{}, Loaded: true}
	if got := renderEvents(unloaded, 80); got != placeholderEvents {
		t.Fatalf("unexpected unloaded events render: %q", got)
	}
	if got := renderEvents(empty, 80); got != placeholderEvents {
		t.Fatalf("unexpected empty events render: %q", got)
	}
	if got := renderValidations(feed.List[pipeline.ValidationResult]{Loaded: true}, 80); got != placeholderValidation {
		t.Fatalf("unexpected validation render: %q", got)
	}
	if got := renderRedactions(feed.List[pipeline.RedactionResult]{}, 80); got != placeholderRedaction {
		t.Fatalf("unexpected redaction render: %q", got)
	}
	m := newModel(context.Background(), newTestApp(nil, nil))
	if got := m.renderInsights(feed.List[pipeline.Insight]{Loaded: true}, 80); got != placeholderInsights {
		t.Fatalf("unexpected insights render: %q", got)
	}
}

func TestRenderStatusFallsBackToNotStarted(t *testing.T) {
	out := renderStatus(feed.Record[pipeline.AgentStatus]{Value: pipeline.AgentStatus{Agent1: "Validated 3 events"}})
	if !strings.Contains(out, "Validated 3 events") {
		t.Fatalf("expected agent1 status in %q", out)
	}
	if strings.Count(out, statusNotStarted) != 2 {
		t.Fatalf("expected two %q fallbacks in %q", statusNotStarted, out)
	}
}

func TestRenderInsightsHighlightsWarnings(t *testing.T) {
	m := newModel(context.Background(), newTestApp(nil, nil))
	m.theme.warning = lipgloss.NewStyle().Transform(strings.ToUpper)
	list := feed.List[pipeline.Insight]{
		Loaded: true,
		Items: []pipeline.Insight{
			{InsightType: "summary", InsightText: "steady traffic"},
			{InsightType: "alert", InsightText: "⚠️ Alert: consent rate dropped"},
		},
	}
	out := m.renderInsights(list, 200)
	if !strings.Contains(out, "steady traffic") {
		t.Fatalf("expected plain insight to stay as is: %q", out)
	}
	if !strings.Contains(out, "ALERT: CONSENT RATE DROPPED") {
		t.Fatalf("expected alert insight to be highlighted: %q", out)
	}
}

func TestRenderValidationShowsDecodedIssues(t *testing.T) {
	list := feed.List[pipeline.ValidationResult]{
		Loaded: true,
		Items: []pipeline.ValidationResult{{
			SessionID:        "s1",
			ValidationStatus: pipeline.ValidationError,
			Issues:           pipeline.EncodedList{Items: []string{"Missing page_url", "Bad IP"}},
			Timestamp:        "2024-05-01 10:00:00",
		}},
	}
	out := renderValidations(list, 120)
	if !strings.Contains(out, "Missing page_url; Bad IP") {
		t.Fatalf("expected issues in %q", out)
	}
}

func TestEventFormDefaultsAndToggles(t *testing.T) {
	f := newEventForm()
	if got := f.value(); got != submit.DefaultForm() {
		t.Fatalf("expected default form, got %+v", got)
	}
	f.focusField(fieldEncrypt)
	if !f.onToggle() {
		t.Fatalf("expected encrypt field to be a toggle")
	}
	f.toggle()
	f.focusField(fieldConsent)
	f.toggle()
	got := f.value()
	if !got.EncryptEmail || got.ConsentGiven {
		t.Fatalf("unexpected toggles: %+v", got)
	}
	f.focusField(fieldCount)
	if f.focus != fieldSessionID {
		t.Fatalf("expected focus to wrap, got %d", f.focus)
	}
}

func TestChatEnterWhilePendingIsRejected(t *testing.T) {
	asker := blockingAsker{release: make(chan struct{})}
	defer close(asker.release)
	a := newTestApp(asker, nil)
	m := newModel(context.Background(), a)
	m.switchTab(tabChat)

	m = typeText(t, m, "what happened?")
	updated, cmd := m.Update(key(tea.KeyEnter))
	m = updated.(model)
	if cmd == nil {
		t.Fatalf("expected a resolve command")
	}
	if m.question.Value() != "" {
		t.Fatalf("expected input to clear after acceptance")
	}
	if !a.chat.Pending() {
		t.Fatalf("expected a pending turn")
	}

	m = typeText(t, m, "another")
	updated, cmd = m.Update(key(tea.KeyEnter))
	m = updated.(model)
	if cmd != nil {
		t.Fatalf("expected no command while pending")
	}
	if m.question.Value() != "another" {
		t.Fatalf("expected rejected question to stay in the input, got %q", m.question.Value())
	}
	msgs := a.chat.Messages()
	if len(msgs) != 2 || !msgs[1].Placeholder {
		t.Fatalf("expected one question and one placeholder, got %+v", msgs)
	}
}

func TestChatEnterIgnoresBlankQuestion(t *testing.T) {
	a := newTestApp(blockingAsker{release: make(chan struct{})}, nil)
	m := newModel(context.Background(), a)
	m.switchTab(tabChat)
	m = typeText(t, m, "   ")
	_, cmd := m.Update(key(tea.KeyEnter))
	if cmd != nil {
		t.Fatalf("expected blank question to be ignored")
	}
	if len(a.chat.Messages()) != 0 {
		t.Fatalf("expected no messages")
	}
}

func TestSubmitOutcomeDrivesForm(t *testing.T) {
	a := newTestApp(nil, stubSubmitter{err: errors.New("connection refused")})
	defer a.feedback.Stop()
	m := newModel(context.Background(), a)
	m.switchTab(tabSubmit)
	m.form.load(submit.Form{SessionID: "s1", EventType: "click", Email: " a@b.com ", ConsentGiven: true})

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = updated.(model)
	if cmd == nil || !m.submitting {
		t.Fatalf("expected submission to start")
	}
	if _, again := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS}); again != nil {
		t.Fatalf("expected second submit to be ignored while one is in flight")
	}

	m.form.inputs[fieldEventType].SetValue("click-edited")

	done, ok := cmd().(submitDoneMsg)
	if !ok {
		t.Fatalf("expected submitDoneMsg")
	}
	if got := done.outcome.Event.UserEmail; got != " a@b.com " {
		t.Fatalf("expected email to be sent as typed, got %q", got)
	}
	updated, _ = m.Update(done)
	m = updated.(model)
	if m.submitting {
		t.Fatalf("expected submitting to clear")
	}
	kept := m.form.value()
	if kept.SessionID != "s1" || kept.Email != " a@b.com " || kept.EventType != "click-edited" {
		t.Fatalf("expected failed submit to leave the form untouched, got %+v", kept)
	}
	notice, visible := a.feedback.Current()
	if !visible || notice.Text != "Error submitting event. Please try again." {
		t.Fatalf("unexpected notice: %+v", notice)
	}

	updated, _ = m.Update(submitDoneMsg{outcome: submit.Outcome{Success: true, Form: submit.DefaultForm()}})
	m = updated.(model)
	if got := m.form.value(); got != submit.DefaultForm() {
		t.Fatalf("expected successful submit to reset the form, got %+v", got)
	}
}

func TestQuitConfirmFlow(t *testing.T) {
	m := newModel(context.Background(), newTestApp(nil, nil))
	updated, _ := m.Update(key(tea.KeyEsc))
	m = updated.(model)
	if !m.quitConfirm {
		t.Fatalf("expected quit confirmation")
	}
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	m = updated.(model)
	if m.quitConfirm {
		t.Fatalf("expected quit to be canceled")
	}
}

func TestClampDuration(t *testing.T) {
	if got := clampDuration(100*time.Millisecond, time.Second, time.Minute); got != time.Second {
		t.Fatalf("expected lower clamp, got %s", got)
	}
	if got := clampDuration(time.Hour, time.Second, time.Minute); got != time.Minute {
		t.Fatalf("expected upper clamp, got %s", got)
	}
	if got := clampDuration(5*time.Second, time.Second, time.Minute); got != 5*time.Second {
		t.Fatalf("expected value unchanged, got %s", got)
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	if got != "one two\nthree\nfour" {
		t.Fatalf("unexpected wrap: %q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	got := truncate("✓ ⚠️ Alert: consent rate dropped", 6)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got)
	}
	if got != "✓ ⚠..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestPushLabelReadsLatestStateWhenInboundIsFull(t *testing.T) {
	a := newTestApp(nil, nil)
	m := newModel(context.Background(), a)
	m.pushEnabled = true
	if got := m.pushLabel(); got != "push: connecting..." {
		t.Fatalf("unexpected label before any state: %q", got)
	}

	for len(a.inbound) < cap(a.inbound) {
		a.post(feedChangedMsg{kind: feed.Events})
	}
	a.setPushState(push.State{Connected: true})
	if got := m.pushLabel(); got != "push: live" {
		t.Fatalf("expected live label with a full inbound buffer, got %q", got)
	}

	a.setPushState(push.State{Info: "stream closed by server"})
	if got := m.pushLabel(); !strings.Contains(got, "stream closed by server") {
		t.Fatalf("expected down label, got %q", got)
	}
}
