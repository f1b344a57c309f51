package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event is the payload posted to /submit_event.
type Event struct {
	SessionID    string `json:"session_id"`
	UserEmail    string `json:"user_email"`
	EventType    string `json:"event_type"`
	PageURL      string `json:"page_url"`
	IPAddress    string `json:"ip_address"`
	ConsentGiven bool   `json:"consent_given"`
	EncryptEmail bool   `json:"encrypt_email"`
}

// EventRecord is a stored raw event as returned by /api/recent_events.
type EventRecord struct {
	ID                int64  `json:"id"`
	SessionID         string `json:"session_id"`
	UserEmail         string `json:"user_email"`
	EventType         string `json:"event_type"`
	PageURL           string `json:"page_url"`
	IPAddress         string `json:"ip_address"`
	ConsentGiven      Flag   `json:"consent_given"`
	EncryptEmail      Flag   `json:"encrypt_email"`
	ProcessedByAgent1 Flag   `json:"processed_by_agent1"`
	Timestamp         string `json:"timestamp"`
}

type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "VALID"
	ValidationWarning ValidationStatus = "WARNING"
	ValidationError   ValidationStatus = "ERROR"
	ValidationInvalid ValidationStatus = "INVALID"
)

// ValidationResult is one row of validation agent output.
type ValidationResult struct {
	ID               int64            `json:"id"`
	EventID          int64            `json:"event_id"`
	SessionID        string           `json:"session_id"`
	EventType        string           `json:"event_type"`
	PageURL          string           `json:"page_url"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	Issues           EncodedList      `json:"issues"`
	Timestamp        string           `json:"timestamp"`
}

type ComplianceStatus string

const (
	Compliant    ComplianceStatus = "COMPLIANT"
	NonCompliant ComplianceStatus = "NON_COMPLIANT"
)

// RedactionResult is one row of redaction agent output.
type RedactionResult struct {
	ID                int64            `json:"id"`
	SessionID         string           `json:"session_id"`
	UserEmailRedacted string           `json:"user_email_redacted"`
	IPAddressRedacted string           `json:"ip_address_redacted"`
	EventCount        int              `json:"event_count"`
	ComplianceStatus  ComplianceStatus `json:"compliance_status"`
	RedactionLog      EncodedList      `json:"redaction_log"`
	Timestamp         string           `json:"timestamp"`
}

// AlertMarker prefixes insight texts the insight agent raises as alerts.
const AlertMarker = "⚠️"

// Insight is one generated observation of the insight agent.
type Insight struct {
	ID                int64  `json:"id"`
	InsightType       string `json:"insight_type"`
	InsightText       string `json:"insight_text"`
	RelatedSessionIDs string `json:"related_session_ids"`
	Timestamp         string `json:"timestamp"`
}

// IsWarning reports whether the text carries an alert marker. It is derived from the
// text on every call and never stored.
func (i Insight) IsWarning() bool {
	return strings.Contains(i.InsightText, AlertMarker) || strings.Contains(i.InsightText, "Alert")
}

// AgentStatus is the liveness record of the three pipeline agents.
type AgentStatus struct {
	Agent1 string `json:"agent1"`
	Agent2 string `json:"agent2"`
	Agent3 string `json:"agent3"`
}

// Stats is the backend's summary of the pipeline.
type Stats struct {
	TotalEvents       int     `json:"total_events"`
	ConsentCount      int     `json:"consent_count"`
	RedactedCount     int     `json:"redacted_count"`
	IssuesDetected    int     `json:"issues_detected"`
	ConsentPercentage float64 `json:"consent_percentage"`
}

type SubmitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	EventID int64  `json:"event_id,omitempty"`
}

type askRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer"`
	Error    string `json:"error,omitempty"`
}

// Push message types.
const (
	MessageAgentStatus = "agent_status"
	MessageNewInsight  = "new_insight"
)

// StreamMessage is the envelope of every push message.
type StreamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Flag decodes booleans stored as SQLite integers as well as JSON booleans. A value that
// is neither decodes as false and records Err instead of failing the enclosing document.
type Flag struct {
	Value bool
	Err   error
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	*f = Flag{}
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(raw) {
	case "", "null", "0", "false":
		return nil
	case "1", "true":
		f.Value = true
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		f.Err = fmt.Errorf("invalid flag %s", truncate(raw, 40))
		return nil
	}
	f.Value = n != 0
	return nil
}

// EncodedList is a list of strings the backend stores as JSON text inside a JSON string
// field. A payload that cannot be decoded leaves Items empty and records Err instead of
// failing the enclosing document.
type EncodedList struct {
	Items []string
	Raw   string
	Err   error
}

func (l *EncodedList) UnmarshalJSON(data []byte) error {
	*l = EncodedList{}
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '[':
		l.Raw = string(trimmed)
		l.Items, l.Err = decodeStrings(trimmed)
		return nil
	case trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &l.Raw); err != nil {
			l.Err = err
			return nil
		}
		if strings.TrimSpace(l.Raw) == "" {
			return nil
		}
		l.Items, l.Err = decodeStrings([]byte(l.Raw))
		return nil
	default:
		l.Raw = string(trimmed)
		l.Err = fmt.Errorf("unexpected encoded list %s", truncate(l.Raw, 40))
		return nil
	}
}

func (l EncodedList) MarshalJSON() ([]byte, error) {
	items := l.Items
	if items == nil {
		items = []string{}
	}
	inner, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(inner))
}

func decodeStrings(data []byte) ([]string, error) {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode encoded list: %w", err)
	}
	return items, nil
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses the backend's timestamp column. SQLite CURRENT_TIMESTAMP values
// carry no zone and are UTC.
func ParseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
