package services

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
)

// IncidentService handles the incident lifecycle outside the correlation
// and assignment engines: queries and resolution.
type IncidentService struct {
	db        *gorm.DB
	locks     *KeyedMutex
	assigner  *AssignmentService
	overflow  *OverflowQueue
	publisher Publisher
	audit     AuditSink
}

// NewIncidentService creates a new incident service
func NewIncidentService(db *gorm.DB, locks *KeyedMutex, assigner *AssignmentService, overflow *OverflowQueue, publisher Publisher, audit AuditSink) *IncidentService {
	return &IncidentService{
		db:        db,
		locks:     locks,
		assigner:  assigner,
		overflow:  overflow,
		publisher: publisher,
		audit:     audit,
	}
}

// GetByUUID returns an incident by UUID
func (s *IncidentService) GetByUUID(uuid string) (*database.Incident, error) {
	var incident database.Incident
	if err := s.db.Where("uuid = ?", uuid).First(&incident).Error; err != nil {
		return nil, err
	}
	return &incident, nil
}

// ListOpen returns all non-resolved incidents, newest first. Pass a zero
// companyID to list across tenants.
func (s *IncidentService) ListOpen(companyID uint) ([]database.Incident, error) {
	query := s.db.Where("status IN ?", database.OpenIncidentStatuses())
	if companyID != 0 {
		query = query.Where("company_id = ?", companyID)
	}
	var incidents []database.Incident
	err := query.Order("created_at DESC").Find(&incidents).Error
	return incidents, err
}

// ListByStatus returns incidents filtered by status, newest first.
func (s *IncidentService) ListByStatus(companyID uint, statuses []database.IncidentStatus) ([]database.Incident, error) {
	query := s.db.Where("status IN ?", statuses)
	if companyID != 0 {
		query = query.Where("company_id = ?", companyID)
	}
	var incidents []database.Incident
	err := query.Order("created_at DESC").Find(&incidents).Error
	return incidents, err
}

// Resolve closes an incident: SLA tracking ends (resolved_at is the
// measurement point), the assigned technician's capacity is released and
// the freed capacity immediately replays the company's overflow queue.
func (s *IncidentService) Resolve(incidentUUID, resolvedBy string) (*database.Incident, error) {
	var incident database.Incident
	if err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error; err != nil {
		return nil, err
	}

	s.locks.Lock(incident.CompanyID)

	err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error
	if err != nil {
		s.locks.Unlock(incident.CompanyID)
		return nil, err
	}
	if !incident.IsOpen() {
		s.locks.Unlock(incident.CompanyID)
		return &incident, nil
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&incident).Updates(map[string]interface{}{
			"status":      database.IncidentStatusResolved,
			"resolved_at": now,
		}).Error; err != nil {
			return err
		}
		if incident.AssignedTo != nil {
			if err := database.ReleaseCapacity(tx, *incident.AssignedTo); err != nil {
				return err
			}
		}
		return tx.Where("incident_id = ?", incident.ID).Delete(&database.OverflowQueueEntry{}).Error
	})
	s.locks.Unlock(incident.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve incident %s: %w", incidentUUID, err)
	}
	incident.Status = database.IncidentStatusResolved
	incident.ResolvedAt = &now

	if s.audit != nil {
		s.audit.Record("incident_resolved", "incident", incident.UUID, map[string]interface{}{
			"resolved_by": resolvedBy,
		})
	}
	publish(s.publisher, EventIncidentResolved, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"company_id":    incident.CompanyID,
	})

	// Capacity freed up: give queued incidents another chance. The lock
	// is released first because the replay takes it per assignment.
	if s.assigner != nil {
		if _, err := s.assigner.ProcessQueue(incident.CompanyID); err != nil {
			log.Printf("Overflow replay after resolving %s failed: %v", incident.UUID, err)
		}
	}

	return &incident, nil
}
