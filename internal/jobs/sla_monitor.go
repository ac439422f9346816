package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
	"github.com/korrelix/korrelix/internal/services"
)

// SLAMonitor periodically checks open incidents against their SLA
// deadlines and escalates breaches
type SLAMonitor struct {
	db  *gorm.DB
	sla *services.SLAService
}

// NewSLAMonitor creates a new SLA monitor
func NewSLAMonitor(db *gorm.DB, sla *services.SLAService) *SLAMonitor {
	return &SLAMonitor{db: db, sla: sla}
}

// Run executes one monitoring sweep. Returns the number of incidents
// checked and the number escalated. Per-incident failures are logged and
// skipped; escalation is idempotent so re-checking an already escalated
// incident does not re-notify.
func (m *SLAMonitor) Run() (int, int, error) {
	// All open statuses are swept: queued incidents keep their SLA clock
	// running, and an incident escalated for a response breach can still
	// breach resolution later.
	var incidents []database.Incident
	err := m.db.Where("status IN ?", database.OpenIncidentStatuses()).Find(&incidents).Error
	if err != nil {
		return 0, 0, err
	}

	checked := 0
	escalated := 0
	for i := range incidents {
		incident := &incidents[i]
		if !incident.SLAEnabled {
			continue
		}
		checked++

		status, err := m.sla.CheckStatus(incident.UUID)
		if err != nil {
			log.Printf("SLA check for incident %s failed: %v", incident.UUID, err)
			continue
		}

		var breachType string
		switch {
		case status.ResponseBreached && incident.AssignedTo == nil:
			breachType = services.BreachTypeResponse
		case status.ResolutionBreached:
			breachType = services.BreachTypeResolution
		default:
			continue
		}

		result, err := m.sla.HandleBreach(incident.UUID, breachType)
		if err != nil {
			log.Printf("SLA breach handling for incident %s failed: %v", incident.UUID, err)
			continue
		}
		if result.Escalated {
			escalated++
		}
	}
	return checked, escalated, nil
}

// Start begins the periodic SLA checks. Repository failures are logged
// and the loop continues with the next tick.
func (m *SLAMonitor) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			checked, escalated, err := m.Run()
			if err != nil {
				log.Printf("SLA monitor error: %v", err)
			} else if escalated > 0 {
				log.Printf("SLA monitor: checked %d incidents, escalated %d", checked, escalated)
			}
		case <-stop:
			log.Println("SLA monitor stopped")
			return
		}
	}
}
