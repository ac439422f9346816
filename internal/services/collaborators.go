package services

import (
	"log"
	"time"

	"github.com/korrelix/korrelix/internal/database"
	"gorm.io/gorm"
)

// Notifier delivers a notification to one user. Implementations must be
// safe for concurrent use; delivery failures never abort the pipeline.
type Notifier interface {
	Notify(userID uint, kind string, payload map[string]interface{}) error
}

// Publisher emits named pipeline events for dashboards. Fire-and-forget.
type Publisher interface {
	Publish(event string, payload interface{})
}

// AuditSink records assignment and escalation decisions.
type AuditSink interface {
	Record(action, resourceType, resourceID string, details map[string]interface{})
}

// OnCallProvider resolves the technician currently on duty for a company.
// A nil technician with a nil error means nobody is on call right now;
// providers are optional collaborators.
type OnCallProvider interface {
	CurrentOnCall(companyID uint) (*database.TechnicianSkills, error)
}

// Pipeline event names consumed by dashboards over the websocket hub.
const (
	EventCorrelationStarted  = "correlation_started"
	EventCorrelationProgress = "correlation_progress"
	EventCorrelationComplete = "correlation_complete"
	EventIncidentCreated     = "incident_created"
	EventIncidentUpdated     = "incident_updated"
	EventIncidentAssigned    = "incident_assigned"
	EventIncidentQueued      = "incident_queued"
	EventIncidentResolved    = "incident_resolved"
	EventIncidentEscalated   = "incident_escalated"
	EventSLABreach           = "sla_breach"
)

// notifyBestEffort sends a notification and only logs failures.
func notifyBestEffort(n Notifier, userID uint, kind string, payload map[string]interface{}) {
	if n == nil {
		return
	}
	if err := n.Notify(userID, kind, payload); err != nil {
		log.Printf("Notification %s to user %d failed: %v", kind, userID, err)
	}
}

// publish emits an event if a publisher is configured.
func publish(p Publisher, event string, payload interface{}) {
	if p != nil {
		p.Publish(event, payload)
	}
}

// OnCallSchedule is the database-backed on-call provider: the technician
// whose enabled shift covers the current instant.
type OnCallSchedule struct {
	db *gorm.DB
}

// NewOnCallSchedule creates a new on-call schedule provider
func NewOnCallSchedule(db *gorm.DB) *OnCallSchedule {
	return &OnCallSchedule{db: db}
}

// CurrentOnCall returns the on-duty technician's skills record, or nil
// when no shift covers now.
func (s *OnCallSchedule) CurrentOnCall(companyID uint) (*database.TechnicianSkills, error) {
	now := time.Now()

	var shift database.OnCallShift
	err := s.db.Where("company_id = ? AND enabled = ? AND starts_at <= ? AND ends_at > ?",
		companyID, true, now, now).Order("starts_at DESC").First(&shift).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var tech database.TechnicianSkills
	err = s.db.Where("user_id = ?", shift.UserID).First(&tech).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tech, nil
}
