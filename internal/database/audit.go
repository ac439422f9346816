package database

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// AuditLog records assignment and escalation decisions for later review
type AuditLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Action       string    `gorm:"size:64;not null;index" json:"action"`
	ResourceType string    `gorm:"size:64;not null" json:"resource_type"`
	ResourceID   string    `gorm:"size:64;not null;index" json:"resource_id"`
	Details      JSONB     `gorm:"type:text" json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditRecorder persists audit entries. Recording is best-effort: a
// failed write is logged and never fails the calling workflow.
type AuditRecorder struct {
	db *gorm.DB
}

// NewAuditRecorder creates a new audit recorder
func NewAuditRecorder(db *gorm.DB) *AuditRecorder {
	return &AuditRecorder{db: db}
}

// Record writes one audit entry.
func (a *AuditRecorder) Record(action, resourceType, resourceID string, details map[string]interface{}) {
	entry := &AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      JSONB(details),
	}
	if err := a.db.Create(entry).Error; err != nil {
		log.Printf("Failed to record audit entry %s/%s: %v", action, resourceID, err)
	}
}
