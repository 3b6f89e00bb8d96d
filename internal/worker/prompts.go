package worker

import (
	"fmt"
	"strings"

	"github.com/triagent/triagent/internal/retrieval"
	"github.com/triagent/triagent/internal/task"
)

const systemPrompt = `You are an expert Site Reliability Engineer (SRE) AI assistant.

Your responsibilities include:
- Analyzing incidents and providing clear, actionable summaries
- Triaging support tickets and categorizing them appropriately
- Performing root cause analysis on production issues
- Suggesting runbook actions and remediation steps

Be concise and technical. Use clear structure with headers and bullet
points, focus on actionable insights, and acknowledge uncertainty when
the root cause is unclear.`

func joinOr(ss []string, fallback string) string {
	if len(ss) == 0 {
		return fallback
	}
	return strings.Join(ss, ", ")
}

func incidentPrompt(in task.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this incident and provide a structured summary:\n\n")
	fmt.Fprintf(&b, "**Incident:** %s\n", in.Key)
	fmt.Fprintf(&b, "**Summary:** %s\n", in.Summary)
	fmt.Fprintf(&b, "**Status:** %s\n", orNA(in.Status))
	fmt.Fprintf(&b, "**Priority:** %s\n", orNA(in.Priority))
	fmt.Fprintf(&b, "**Labels:** %s\n\n", joinOr(in.Labels, "None"))
	fmt.Fprintf(&b, "**Description:**\n%s\n\n", orDefault(in.Description, "No description provided"))
	b.WriteString(`Please provide:
1. **Executive Summary** (2-3 sentences capturing impact and resolution)
2. **Timeline** of key events
3. **Root Cause** (if identifiable from the information provided)
4. **Resolution** steps taken
5. **Recommendations** to prevent recurrence
`)
	return b.String()
}

func triagePrompt(t task.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Triage this support ticket:\n\n")
	fmt.Fprintf(&b, "**Ticket:** %s\n", t.Key)
	fmt.Fprintf(&b, "**Summary:** %s\n", t.Summary)
	fmt.Fprintf(&b, "**Labels:** %s\n\n", joinOr(t.Labels, "None"))
	fmt.Fprintf(&b, "**Description:**\n%s\n\n", orDefault(t.Description, "No description provided"))
	b.WriteString(`Analyze and provide:
1. **Category**: bug | feature request | support question | incident | documentation
2. **Priority**: critical | high | medium | low
3. **Suggested Team/Owner**: Which team should handle this
4. **Escalation Needed**: Yes/No and why
5. **Reasoning**: Brief explanation of your categorization
`)
	return b.String()
}

func rootCausePrompt(p task.RootCausePayload, related []retrieval.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Perform root cause analysis on this incident:\n\n")
	fmt.Fprintf(&b, "**Incident:** %s\n", p.Incident.Key)
	fmt.Fprintf(&b, "**Summary:** %s\n", p.Incident.Summary)
	fmt.Fprintf(&b, "**Status:** %s\n", orNA(p.Incident.Status))
	fmt.Fprintf(&b, "**Priority:** %s\n\n", orNA(p.Incident.Priority))
	fmt.Fprintf(&b, "**Description:**\n%s\n\n", orDefault(p.Incident.Description, "No description provided"))

	b.WriteString("**Related Code Changes:**\n")
	if len(p.CodeChanges) == 0 {
		b.WriteString("None provided\n")
	}
	for _, c := range p.CodeChanges {
		fmt.Fprintf(&b, "- %v: %v\n", valueOr(c, "title", "Untitled"), valueOr(c, "url", "No URL"))
	}

	b.WriteString("\n**Similar Past Incidents:**\n")
	if len(p.RelatedIncidents) == 0 && len(related) == 0 {
		b.WriteString("None provided\n")
	}
	for _, r := range p.RelatedIncidents {
		fmt.Fprintf(&b, "- %v: %v\n", valueOr(r, "key", "Unknown"), valueOr(r, "summary", "No summary"))
	}
	for _, d := range related {
		fmt.Fprintf(&b, "- %s: %s\n", d.ID, d.Text)
	}

	b.WriteString(`
Provide:
1. **Most Likely Root Cause** with confidence level
2. **Contributing Factors**
3. **Evidence** supporting the hypothesis
4. **Suggested Fixes** and preventive measures
`)
	return b.String()
}

func chatPrompt(p task.ChatPayload) string {
	if len(p.Context) == 0 {
		return p.Message
	}
	var b strings.Builder
	b.WriteString("Context:\n")
	for k, v := range p.Context {
		fmt.Fprintf(&b, "- %s: %v\n", k, v)
	}
	fmt.Fprintf(&b, "\n%s", p.Message)
	return b.String()
}

func orNA(s string) string { return orDefault(s, "N/A") }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func valueOr(m map[string]any, key, def string) any {
	if v, ok := m[key]; ok && v != nil && v != "" {
		return v
	}
	return def
}
