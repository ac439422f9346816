package notify

import (
	"strings"
	"testing"
)

func TestFormatMessage_Escalation(t *testing.T) {
	msg := formatMessage(7, "sla_escalation", map[string]interface{}{
		"incident_uuid": "abc-123",
		"breach_type":   "response",
		"severity":      "critical",
		"description":   "disk_full on srv-1 (4 alerts via Datadog)",
	})

	for _, want := range []string{
		":red_circle:",
		"*SLA escalation*",
		"(user 7)",
		"incident abc-123",
		"response SLA breached",
		"disk_full on srv-1",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestFormatMessage_KnownKinds(t *testing.T) {
	tests := map[string]string{
		"incident_created":  "*New incident*",
		"incident_assigned": "*Incident assigned*",
		"incident_queued":   "*Incident waiting for capacity*",
		"some_other_kind":   "*some_other_kind*",
	}
	for kind, want := range tests {
		msg := formatMessage(1, kind, nil)
		if !strings.Contains(msg, want) {
			t.Errorf("kind %s: message %q missing %q", kind, msg, want)
		}
	}
}

func TestFormatMessage_TruncatesLongDescription(t *testing.T) {
	msg := formatMessage(1, "incident_created", map[string]interface{}{
		"description": strings.Repeat("x", 500),
	})
	if len(msg) > 400 {
		t.Errorf("message length = %d, want description truncated", len(msg))
	}
	if !strings.Contains(msg, "...") {
		t.Error("truncated description should carry an ellipsis")
	}
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	if err := n.Notify(1, "incident_created", map[string]interface{}{"incident_uuid": "x"}); err != nil {
		t.Errorf("Notify failed: %v", err)
	}
}
