package submit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient message shown after a submission attempt.
type Notice struct {
	ID   uuid.UUID
	Kind NoticeKind
	Text string
	At   time.Time
}

func newNotice(kind NoticeKind, text string) Notice {
	return Notice{ID: uuid.New(), Kind: kind, Text: text, At: time.Now()}
}

func (n Notice) IsError() bool {
	return n.Kind == NoticeError
}

// Feedback shows one notice at a time and hides it after a fixed duration. Each hide
// timer only clears the notice it was scheduled for.
type Feedback struct {
	mu       sync.Mutex
	current  *Notice
	timer    *time.Timer
	duration time.Duration
	onChange func()
}

func NewFeedback(duration time.Duration, onChange func()) *Feedback {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return &Feedback{duration: duration, onChange: onChange}
}

// Show replaces the visible notice and restarts the hide timer.
func (f *Feedback) Show(n Notice) {
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
	}
	shown := n
	f.current = &shown
	id := n.ID
	f.timer = time.AfterFunc(f.duration, func() { f.hide(id) })
	f.mu.Unlock()

	f.changed()
}

func (f *Feedback) hide(id uuid.UUID) {
	f.mu.Lock()
	if f.current == nil || f.current.ID != id {
		f.mu.Unlock()
		return
	}
	f.current = nil
	f.timer = nil
	f.mu.Unlock()

	f.changed()
}

// Current returns the visible notice, if any.
func (f *Feedback) Current() (Notice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return Notice{}, false
	}
	return *f.current, true
}

// Stop cancels the pending hide timer. The visible notice is left as is.
func (f *Feedback) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *Feedback) changed() {
	if f.onChange != nil {
		f.onChange()
	}
}
