package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/triagent/triagent/internal/task"
)

// Classification is the routing decision for one delivery: either a task
// submission (Kind + Payload) or an ignore. EventType is recorded either way.
type Classification struct {
	EventType string
	Ignored   bool
	Kind      task.Kind
	Payload   json.RawMessage
	// DedupKey is a source-specific replay key, empty when the source
	// provides no stable identity for the delivery.
	DedupKey string
}

// MalformedError marks a payload rejected at intake; it maps to a 400 and
// never reaches the broker.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "malformed webhook payload: " + e.Reason }

func malformed(format string, args ...any) error {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

// Classify applies the source-specific routing rules to a raw webhook body.
func Classify(source Source, body []byte) (*Classification, error) {
	switch source {
	case SourceTicketSystem:
		return classifyTicketSystem(body)
	case SourcePagerSystem:
		return classifyPagerSystem(body)
	case SourceGeneric:
		return classifyGeneric(body)
	}
	return nil, malformed("unknown source %q", source)
}

// ticketEvent is the shape of an issue-tracker webhook delivery.
type ticketEvent struct {
	WebhookEvent string `json:"webhookEvent"`
	Timestamp    int64  `json:"timestamp"`
	Issue        struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string   `json:"summary"`
			Description string   `json:"description"`
			Labels      []string `json:"labels"`
			IssueType   struct {
				Name string `json:"name"`
			} `json:"issuetype"`
			Status struct {
				Name string `json:"name"`
			} `json:"status"`
			Priority struct {
				Name string `json:"name"`
			} `json:"priority"`
		} `json:"fields"`
	} `json:"issue"`
}

// classifyTicketSystem handles issue created/updated events. Issues that
// look like incidents (type, label, or key prefix) are summarized; everything
// else becomes a triage task.
func classifyTicketSystem(body []byte) (*Classification, error) {
	var ev ticketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	eventType := ev.WebhookEvent
	if eventType == "" {
		eventType = "unknown"
	}
	if eventType != "jira:issue_created" && eventType != "jira:issue_updated" {
		return &Classification{EventType: eventType, Ignored: true}, nil
	}
	if ev.Issue.Key == "" {
		return nil, malformed("issue key missing")
	}

	dedup := ""
	if ev.Timestamp != 0 {
		dedup = fmt.Sprintf("%s@%d", ev.Issue.Key, ev.Timestamp)
	}

	labels := ev.Issue.Fields.Labels
	isIncident := strings.EqualFold(ev.Issue.Fields.IssueType.Name, "incident") ||
		containsFold(labels, "incident") ||
		strings.HasPrefix(ev.Issue.Key, "INC-")

	if isIncident {
		p := task.SummarizePayload{Incident: task.Incident{
			Key:         ev.Issue.Key,
			Summary:     ev.Issue.Fields.Summary,
			Description: ev.Issue.Fields.Description,
			Status:      ev.Issue.Fields.Status.Name,
			Priority:    ev.Issue.Fields.Priority.Name,
			Labels:      labels,
		}}
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		return &Classification{EventType: eventType, Kind: task.KindSummarize, Payload: raw, DedupKey: dedup}, nil
	}

	p := task.TriagePayload{Ticket: task.Ticket{
		Key:         ev.Issue.Key,
		Summary:     ev.Issue.Fields.Summary,
		Description: ev.Issue.Fields.Description,
		Labels:      labels,
	}}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &Classification{EventType: eventType, Kind: task.KindTriage, Payload: raw, DedupKey: dedup}, nil
}

// pagerEvent is the shape of a paging-provider v3 webhook delivery.
type pagerEvent struct {
	Event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Data      struct {
			ID          string `json:"id"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Urgency     string `json:"urgency"`
		} `json:"data"`
	} `json:"event"`
}

// classifyPagerSystem summarizes triggered incidents; all other event types
// are ignored.
func classifyPagerSystem(body []byte) (*Classification, error) {
	var ev pagerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	eventType := ev.Event.EventType
	if eventType == "" {
		eventType = "unknown"
	}
	if eventType != "incident.triggered" {
		return &Classification{EventType: eventType, Ignored: true}, nil
	}

	key := ev.Event.Data.ID
	if key == "" {
		key = "PD-UNKNOWN"
	}
	priority := ev.Event.Data.Urgency
	if priority == "" {
		priority = "high"
	}
	p := task.SummarizePayload{Incident: task.Incident{
		Key:         key,
		Summary:     ev.Event.Data.Title,
		Description: ev.Event.Data.Description,
		Status:      "triggered",
		Priority:    priority,
	}}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &Classification{EventType: eventType, Kind: task.KindSummarize, Payload: raw, DedupKey: ev.Event.ID}, nil
}

// genericEvent is the shape of a custom-integration delivery: an action
// naming a task kind plus the data for it.
type genericEvent struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// classifyGeneric routes by the action field. Unknown actions are ignored
// rather than rejected so custom integrations can share an endpoint.
func classifyGeneric(body []byte) (*Classification, error) {
	var ev genericEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	action := ev.Action
	if action == "" {
		action = string(task.KindChat)
	}
	if action == "rca" { // legacy alias
		action = string(task.KindRootCause)
	}
	kind, err := task.ParseKind(action)
	if err != nil {
		return &Classification{EventType: action, Ignored: true}, nil
	}

	data := ev.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if err := task.ValidatePayload(kind, data); err != nil {
		return nil, malformed("%v", err)
	}
	return &Classification{EventType: action, Kind: kind, Payload: data}, nil
}

func containsFold(ss []string, want string) bool {
	for _, s := range ss {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
