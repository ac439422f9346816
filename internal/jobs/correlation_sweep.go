package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
	"github.com/korrelix/korrelix/internal/services"
)

// CorrelationSweep periodically runs alert correlation for every company
// that has auto-correlation enabled
type CorrelationSweep struct {
	db          *gorm.DB
	correlation *services.CorrelationService
}

// NewCorrelationSweep creates a new correlation sweep job
func NewCorrelationSweep(db *gorm.DB, correlation *services.CorrelationService) *CorrelationSweep {
	return &CorrelationSweep{db: db, correlation: correlation}
}

// Run executes one sweep across all tenants. Per-company failures are
// logged and the sweep continues; companies run independently so one bad
// tenant never blocks the rest.
func (j *CorrelationSweep) Run() (int, int, error) {
	var companies []database.Company
	if err := j.db.Order("id ASC").Find(&companies).Error; err != nil {
		return 0, 0, err
	}

	created := 0
	updated := 0
	for _, company := range companies {
		config, err := database.GetOrCreateCorrelationConfig(j.db, company.ID)
		if err != nil {
			log.Printf("Correlation sweep: failed to load config for company %d: %v", company.ID, err)
			continue
		}
		if !config.AutoCorrelate {
			continue
		}

		result, err := j.correlation.Correlate(company.ID)
		if err != nil {
			log.Printf("Correlation sweep: company %d failed: %v", company.ID, err)
			continue
		}
		created += result.IncidentsCreated
		updated += result.IncidentsUpdated
	}
	return created, updated, nil
}

// Start begins the periodic correlation sweeps. Repository failures are
// logged and the loop continues with the next tick.
func (j *CorrelationSweep) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			created, updated, err := j.Run()
			if err != nil {
				log.Printf("Correlation sweep error: %v", err)
			} else if created > 0 || updated > 0 {
				log.Printf("Correlation sweep: created %d incidents, updated %d", created, updated)
			}
		case <-stop:
			log.Println("Correlation sweep stopped")
			return
		}
	}
}
