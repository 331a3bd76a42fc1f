package alert

import (
	"context"
	"fmt"
	"sort"
)

// SlackChannel posts alerts to an incoming webhook as a single
// colored attachment.
type SlackChannel struct {
	webhookURL string
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{webhookURL: webhookURL}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color   string       `json:"color"`
	Pretext string       `json:"pretext"`
	Text    string       `json:"text"`
	Fields  []slackField `json:"fields,omitempty"`
	TS      int64        `json:"ts"`
	Footer  string       `json:"footer"`
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

func (s *SlackChannel) Send(ctx context.Context, alert AlertPayload) error {
	if s.webhookURL == "" {
		return nil
	}

	color := "#36a64f"
	switch alert.Level {
	case Warning:
		color = "#ffcc00"
	case Error:
		color = "#ff0000"
	case Critical:
		color = "#8b0000"
	}

	fields := make([]slackField, 0, len(alert.Fields))
	for _, k := range sortedKeys(alert.Fields) {
		fields = append(fields, slackField{Title: k, Value: alert.Fields[k], Short: true})
	}

	msg := slackMessage{
		Attachments: []slackAttachment{{
			Color:   color,
			Pretext: fmt.Sprintf("[%s] %s", alert.Level, alert.Title),
			Text:    alert.Message,
			Fields:  fields,
			TS:      alert.Timestamp.Unix(),
			Footer:  "book_collector",
		}},
	}

	return postJSON(ctx, s.webhookURL, msg)
}

// sortedKeys keeps the field order stable across sends so alerts for
// the same condition render identically.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
