package services

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
)

// OverflowQueue holds incidents that could not be assigned because no
// technician had spare capacity. Entries are replayed highest priority
// first when capacity frees up.
type OverflowQueue struct {
	db        *gorm.DB
	notifier  Notifier
	publisher Publisher
}

// NewOverflowQueue creates a new overflow queue
func NewOverflowQueue(db *gorm.DB, notifier Notifier, publisher Publisher) *OverflowQueue {
	return &OverflowQueue{db: db, notifier: notifier, publisher: publisher}
}

// Enqueue places an incident on the overflow queue and flips its status
// to queued. Enqueueing is idempotent per incident; the manager
// notification is best-effort and sent only once per entry.
func (q *OverflowQueue) Enqueue(incident *database.Incident) error {
	entry := database.OverflowQueueEntry{
		IncidentID:    incident.ID,
		CompanyID:     incident.CompanyID,
		PriorityScore: incident.PriorityScore,
		Severity:      incident.Severity,
		Status:        database.OverflowStatusQueued,
		QueuedAt:      time.Now(),
	}

	err := q.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("incident_id = ?", incident.ID).FirstOrCreate(&entry).Error; err != nil {
			return err
		}
		return tx.Model(incident).Update("status", database.IncidentStatusQueued).Error
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue incident %s: %w", incident.UUID, err)
	}
	incident.Status = database.IncidentStatusQueued

	if !entry.Notified {
		q.notifyManagers(incident)
		if err := q.db.Model(&entry).Update("notified", true).Error; err != nil {
			log.Printf("Failed to mark overflow entry %d notified: %v", entry.ID, err)
		}
	}

	publish(q.publisher, EventIncidentQueued, map[string]interface{}{
		"incident_uuid":  incident.UUID,
		"company_id":     incident.CompanyID,
		"priority_score": incident.PriorityScore,
	})
	return nil
}

// QueuedEntries returns the company's queued entries ordered by priority
// descending, oldest first within equal priority.
func (q *OverflowQueue) QueuedEntries(companyID uint) ([]database.OverflowQueueEntry, error) {
	var entries []database.OverflowQueueEntry
	err := q.db.Where("company_id = ? AND status = ?", companyID, database.OverflowStatusQueued).
		Order("priority_score DESC, queued_at ASC").Find(&entries).Error
	return entries, err
}

// Remove deletes the queue entry for an incident once it has been
// assigned (or resolved out of band).
func (q *OverflowQueue) Remove(incidentID uint) error {
	return q.db.Where("incident_id = ?", incidentID).Delete(&database.OverflowQueueEntry{}).Error
}

// notifyManagers alerts the company's managers that an incident is
// waiting for capacity. Best-effort.
func (q *OverflowQueue) notifyManagers(incident *database.Incident) {
	managers, err := database.FindUsersByRole(q.db, incident.CompanyID, database.RoleManager)
	if err != nil {
		log.Printf("Failed to resolve managers for overflow alert on %s: %v", incident.UUID, err)
		return
	}
	for _, manager := range managers {
		notifyBestEffort(q.notifier, manager.ID, "incident_queued", map[string]interface{}{
			"incident_uuid": incident.UUID,
			"severity":      string(incident.Severity),
			"description":   incident.Description,
		})
	}
}
