package notify

import (
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"github.com/korrelix/korrelix/internal/database"
	"github.com/korrelix/korrelix/internal/utils"
)

// SlackNotifier delivers notifications to a Slack channel. Per-user
// routing degrades to a single ops channel with the target user named in
// the message; that is where MSP dispatch teams live.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
	}
}

// Notify posts one notification message.
func (n *SlackNotifier) Notify(userID uint, kind string, payload map[string]interface{}) error {
	_, _, err := n.client.PostMessage(n.channel,
		slack.MsgOptionText(formatMessage(userID, kind, payload), false),
	)
	if err != nil {
		return fmt.Errorf("slack notification failed: %w", err)
	}
	return nil
}

// formatMessage renders a compact one-line Slack message.
func formatMessage(userID uint, kind string, payload map[string]interface{}) string {
	var b strings.Builder

	severity, _ := payload["severity"].(string)
	if severity != "" {
		b.WriteString(database.GetSeverityEmoji(database.AlertSeverity(severity)))
		b.WriteString(" ")
	}

	switch kind {
	case "incident_created":
		b.WriteString("*New incident*")
	case "incident_assigned":
		b.WriteString("*Incident assigned*")
	case "incident_queued":
		b.WriteString("*Incident waiting for capacity*")
	case "sla_escalation":
		b.WriteString("*SLA escalation*")
	default:
		b.WriteString("*" + kind + "*")
	}

	fmt.Fprintf(&b, " (user %d)", userID)

	if uuid, ok := payload["incident_uuid"].(string); ok {
		fmt.Fprintf(&b, " incident %s", uuid)
	}
	if breach, ok := payload["breach_type"].(string); ok {
		fmt.Fprintf(&b, " - %s SLA breached", breach)
	}
	if desc, ok := payload["description"].(string); ok && desc != "" {
		fmt.Fprintf(&b, ": %s", utils.TruncateText(desc, 300))
	}
	return b.String()
}

// LogNotifier writes notifications to the process log. Used when Slack
// is not configured so notification side effects stay observable.
type LogNotifier struct{}

// NewLogNotifier creates a new log notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs one notification.
func (n *LogNotifier) Notify(userID uint, kind string, payload map[string]interface{}) error {
	log.Printf("Notification [%s] to user %d: %v", kind, userID, payload)
	return nil
}
