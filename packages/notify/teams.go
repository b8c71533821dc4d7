package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TeamsNotifier sends notifications to Microsoft Teams via webhook
type TeamsNotifier struct {
	webhookURL string
	client     *http.Client
}

// TeamsOption is a functional option for TeamsNotifier
type TeamsOption func(*TeamsNotifier)

// WithTeamsHTTPClient replaces the HTTP client
func WithTeamsHTTPClient(c *http.Client) TeamsOption {
	return func(t *TeamsNotifier) {
		t.client = c
	}
}

// NewTeamsNotifier creates a new Teams notifier
func NewTeamsNotifier(webhookURL string, opts ...TeamsOption) *TeamsNotifier {
	t := &TeamsNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Name returns the name of the notifier
func (t *TeamsNotifier) Name() string {
	return "teams"
}

// teamsMessage is a Teams webhook message carrying an Adaptive Card
type teamsMessage struct {
	Type        string      `json:"type"`
	Attachments []teamsCard `json:"attachments"`
}

type teamsCard struct {
	ContentType string           `json:"contentType"`
	ContentURL  *string          `json:"contentUrl"`
	Content     teamsCardContent `json:"content"`
}

type teamsCardContent struct {
	Schema  string       `json:"$schema"`
	Type    string       `json:"type"`
	Version string       `json:"version"`
	Body    []teamsBlock `json:"body"`
}

type teamsBlock struct {
	Type      string       `json:"type"`
	Size      string       `json:"size,omitempty"`
	Weight    string       `json:"weight,omitempty"`
	Text      string       `json:"text,omitempty"`
	Color     string       `json:"color,omitempty"`
	Wrap      bool         `json:"wrap,omitempty"`
	Facts     []teamsFact  `json:"facts,omitempty"`
	Spacing   string       `json:"spacing,omitempty"`
	Separator bool         `json:"separator,omitempty"`
	Items     []teamsBlock `json:"items,omitempty"`
}

type teamsFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Notify sends a notification to Microsoft Teams
func (t *TeamsNotifier) Notify(ctx context.Context, summary *RunSummary) error {
	color, title := "good", "✓ All tests passed!"
	switch {
	case summary.FailedTests > 0:
		color = "attention"
		title = fmt.Sprintf("✗ %d test(s) failed", summary.FailedTests)
	case summary.Aborted:
		color = "warning"
		title = "⚠ Test run aborted"
	case summary.IsRecovery:
		title = "🎉 Tests recovered!"
	}

	facts := []teamsFact{
		{Title: "Total", Value: fmt.Sprintf("%d", summary.TotalTests)},
		{Title: "Passed", Value: fmt.Sprintf("%d", summary.PassedTests)},
		{Title: "Failed", Value: fmt.Sprintf("%d", summary.FailedTests)},
		{Title: "Skipped", Value: fmt.Sprintf("%d", summary.SkippedTests)},
		{Title: "Duration", Value: summary.Duration.Round(time.Millisecond).String()},
	}
	if summary.ReportPath != "" {
		facts = append(facts, teamsFact{Title: "Report", Value: summary.ReportPath})
	}

	body := []teamsBlock{
		{Type: "TextBlock", Size: "Large", Weight: "Bolder", Text: title, Color: color},
		{Type: "FactSet", Facts: facts, Separator: true, Spacing: "Medium"},
	}

	if names, more := summary.listedFailures(); len(names) > 0 {
		body = append(body, teamsBlock{
			Type:      "TextBlock",
			Text:      "**Failed Tests:**",
			Separator: true,
			Spacing:   "Medium",
		})
		for _, name := range names {
			body = append(body, teamsBlock{Type: "TextBlock", Text: fmt.Sprintf("- `%s`", name), Wrap: true})
		}
		if more > 0 {
			body = append(body, teamsBlock{Type: "TextBlock", Text: fmt.Sprintf("…and %d more", more)})
		}
	}

	body = append(body, teamsBlock{
		Type:      "TextBlock",
		Text:      fmt.Sprintf("_taplogger %s - %s_", summary.RunID, time.Now().Format(time.RFC3339)),
		Separator: true,
		Spacing:   "Medium",
	})

	msg := teamsMessage{
		Type: "message",
		Attachments: []teamsCard{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: teamsCardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.2",
				Body:    body,
			},
		}},
	}

	return postJSON(ctx, t.client, t.webhookURL, msg, http.StatusOK, http.StatusAccepted)
}
