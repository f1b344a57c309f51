package main

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"pipelinewatch/internal/submit"
)

const (
	fieldSessionID = iota
	fieldEmail
	fieldEventType
	fieldPageURL
	fieldIPAddress
	fieldConsent
	fieldEncrypt
	fieldCount
)

const textFieldCount = fieldConsent

var fieldLabels = [fieldCount]string{
	"Session ID",
	"User Email",
	"Event Type",
	"Page URL",
	"IP Address",
	"Consent Given",
	"Encrypt Email (SHA-256)",
}

// eventForm is the Submit tab's input state.
type eventForm struct {
	inputs  [textFieldCount]textinput.Model
	consent bool
	encrypt bool
	focus   int
}

func newEventForm() eventForm {
	placeholders := [textFieldCount]string{
		"session_123",
		"user@example.com",
		"page_view, click, purchase...",
		"https://example.com/page",
		"192.168.1.1",
	}
	f := eventForm{}
	for i := range f.inputs {
		in := textinput.New()
		in.Prompt = ""
		in.CharLimit = 512
		in.Placeholder = placeholders[i]
		f.inputs[i] = in
	}
	f.load(submit.DefaultForm())
	return f
}

func (f eventForm) value() submit.Form {
	return submit.Form{
		SessionID:    f.inputs[fieldSessionID].Value(),
		Email:        f.inputs[fieldEmail].Value(),
		EventType:    f.inputs[fieldEventType].Value(),
		PageURL:      f.inputs[fieldPageURL].Value(),
		IPAddress:    f.inputs[fieldIPAddress].Value(),
		ConsentGiven: f.consent,
		EncryptEmail: f.encrypt,
	}
}

func (f *eventForm) load(v submit.Form) {
	f.inputs[fieldSessionID].SetValue(v.SessionID)
	f.inputs[fieldEmail].SetValue(v.Email)
	f.inputs[fieldEventType].SetValue(v.EventType)
	f.inputs[fieldPageURL].SetValue(v.PageURL)
	f.inputs[fieldIPAddress].SetValue(v.IPAddress)
	f.consent = v.ConsentGiven
	f.encrypt = v.EncryptEmail
}

func (f *eventForm) focusField(index int) {
	f.focus = (index%fieldCount + fieldCount) % fieldCount
	for i := range f.inputs {
		if i == f.focus {
			f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
}

func (f *eventForm) blur() {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
}

func (f *eventForm) onToggle() bool {
	return f.focus >= textFieldCount
}

func (f *eventForm) toggle() {
	switch f.focus {
	case fieldConsent:
		f.consent = !f.consent
	case fieldEncrypt:
		f.encrypt = !f.encrypt
	}
}

func (f eventForm) update(msg tea.Msg) (eventForm, tea.Cmd) {
	if f.onToggle() {
		return f, nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f *eventForm) setWidth(width int) {
	for i := range f.inputs {
		f.inputs[i].Width = width
	}
}
