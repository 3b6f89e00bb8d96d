package task

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Incident is the input for summarize and root_cause tasks.
type Incident struct {
	Key         string         `json:"key"`
	Summary     string         `json:"summary"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
	Components  []string       `json:"components,omitempty"`
	Comments    map[string]any `json:"comments,omitempty"`
}

// Ticket is the input for triage tasks.
type Ticket struct {
	Key          string         `json:"key"`
	Summary      string         `json:"summary"`
	Description  string         `json:"description,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// SummarizePayload wraps an incident with output options.
type SummarizePayload struct {
	Incident               Incident `json:"incident"`
	IncludeRecommendations bool     `json:"include_recommendations,omitempty"`
	Format                 string   `json:"format,omitempty"` // markdown, json, plain
}

// TriagePayload wraps a ticket with triage options.
type TriagePayload struct {
	Ticket      Ticket `json:"ticket"`
	AutoRespond bool   `json:"auto_respond,omitempty"`
	AutoAssign  bool   `json:"auto_assign,omitempty"`
}

// RootCausePayload enriches an incident with change context.
type RootCausePayload struct {
	Incident         Incident         `json:"incident"`
	CodeChanges      []map[string]any `json:"code_changes,omitempty"`
	RelatedIncidents []map[string]any `json:"related_incidents,omitempty"`
}

// ChatPayload is a free-form message to the agent.
type ChatPayload struct {
	Message        string         `json:"message"`
	Context        map[string]any `json:"context,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

// DecodeSummarize parses a summarize payload. A bare incident object
// (no "incident" wrapper) is accepted for convenience.
func DecodeSummarize(raw json.RawMessage) (SummarizePayload, error) {
	var p SummarizePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid summarize payload: %w", err)
	}
	if p.Incident.Key == "" {
		var flat Incident
		if err := json.Unmarshal(raw, &flat); err == nil && flat.Key != "" {
			p.Incident = flat
		}
	}
	if p.Incident.Key == "" || p.Incident.Summary == "" {
		return p, errors.New("summarize payload requires incident key and summary")
	}
	return p, nil
}

// DecodeTriage parses a triage payload, accepting a bare ticket object.
func DecodeTriage(raw json.RawMessage) (TriagePayload, error) {
	var p TriagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid triage payload: %w", err)
	}
	if p.Ticket.Key == "" {
		var flat Ticket
		if err := json.Unmarshal(raw, &flat); err == nil && flat.Key != "" {
			p.Ticket = flat
		}
	}
	if p.Ticket.Key == "" || p.Ticket.Summary == "" {
		return p, errors.New("triage payload requires ticket key and summary")
	}
	return p, nil
}

// DecodeRootCause parses a root_cause payload, accepting a bare incident.
func DecodeRootCause(raw json.RawMessage) (RootCausePayload, error) {
	var p RootCausePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid root_cause payload: %w", err)
	}
	if p.Incident.Key == "" {
		var flat Incident
		if err := json.Unmarshal(raw, &flat); err == nil && flat.Key != "" {
			p.Incident = flat
		}
	}
	if p.Incident.Key == "" || p.Incident.Summary == "" {
		return p, errors.New("root_cause payload requires incident key and summary")
	}
	return p, nil
}

// DecodeChat parses a chat payload.
func DecodeChat(raw json.RawMessage) (ChatPayload, error) {
	var p ChatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("invalid chat payload: %w", err)
	}
	if p.Message == "" {
		return p, errors.New("chat payload requires message")
	}
	return p, nil
}

// ValidatePayload checks that raw is structurally valid input for the
// given kind. Malformed payloads are rejected at the boundary and never
// reach the broker.
func ValidatePayload(kind Kind, raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	var err error
	switch kind {
	case KindSummarize:
		_, err = DecodeSummarize(raw)
	case KindTriage:
		_, err = DecodeTriage(raw)
	case KindRootCause:
		_, err = DecodeRootCause(raw)
	case KindChat:
		_, err = DecodeChat(raw)
	default:
		err = fmt.Errorf("unknown task kind %q", kind)
	}
	return err
}
