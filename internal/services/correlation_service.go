package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
)

// incidentDedupWindow bounds how far back the engine looks for an open
// incident with the same (signature, asset) before creating a new one.
const incidentDedupWindow = 24 * time.Hour

// CorrelationService groups active alerts into incidents per tenant
type CorrelationService struct {
	db        *gorm.DB
	locks     *KeyedMutex
	sla       *SLAService
	notifier  Notifier
	publisher Publisher
}

// NewCorrelationService creates a new correlation service
func NewCorrelationService(db *gorm.DB, locks *KeyedMutex, sla *SLAService, notifier Notifier, publisher Publisher) *CorrelationService {
	return &CorrelationService{
		db:        db,
		locks:     locks,
		sla:       sla,
		notifier:  notifier,
		publisher: publisher,
	}
}

// CorrelationResult summarizes one correlation run
type CorrelationResult struct {
	IncidentsCreated  int     `json:"incidents_created"`
	IncidentsUpdated  int     `json:"incidents_updated"`
	TotalActiveAlerts int     `json:"total_active_alerts"`
	NoiseReductionPct float64 `json:"noise_reduction_pct"`
}

// Correlate runs one correlation pass for a company: active alerts inside
// the configured time window are grouped by signature and asset, merged
// into an existing open incident from the last 24h or turned into a new
// one. Folded alerts are acknowledged. Per-group failures are logged and
// skipped so one bad group never aborts the run.
func (s *CorrelationService) Correlate(companyID uint) (*CorrelationResult, error) {
	s.locks.Lock(companyID)
	defer s.locks.Unlock(companyID)

	config, err := database.GetOrCreateCorrelationConfig(s.db, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load correlation config: %w", err)
	}

	var alerts []database.Alert
	err = s.db.Where("company_id = ? AND status = ?", companyID, database.AlertStatusActive).
		Order("timestamp ASC").Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active alerts: %w", err)
	}

	publish(s.publisher, EventCorrelationStarted, map[string]interface{}{
		"company_id":    companyID,
		"active_alerts": len(alerts),
	})

	now := time.Now()
	cutoff := now.Add(-time.Duration(config.TimeWindowMinutes) * time.Minute)

	// Alerts older than the window are left active for a later run of a
	// wider window or manual triage; they never merge here.
	groups := make(map[string][]database.Alert)
	survivors := 0
	for _, alert := range alerts {
		if alert.Timestamp.Before(cutoff) {
			continue
		}
		key := alert.Signature + ":" + alert.AssetID
		groups[key] = append(groups[key], alert)
		survivors++
	}

	criticalAssets, err := s.criticalAssets(companyID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := &CorrelationResult{TotalActiveAlerts: survivors}
	processedGroups := 0

	for i, key := range keys {
		group := groups[key]
		if len(group) < config.MinAlertsForIncident {
			continue
		}
		processedGroups++

		if err := s.processGroup(companyID, group, criticalAssets, now, result); err != nil {
			log.Printf("Correlation group %s for company %d failed: %v", key, companyID, err)
		}

		publish(s.publisher, EventCorrelationProgress, map[string]interface{}{
			"company_id": companyID,
			"processed":  i + 1,
			"total":      len(keys),
		})
	}

	if survivors > 0 {
		result.NoiseReductionPct = (1 - float64(processedGroups)/float64(survivors)) * 100
	}

	publish(s.publisher, EventCorrelationComplete, map[string]interface{}{
		"company_id":          companyID,
		"incidents_created":   result.IncidentsCreated,
		"incidents_updated":   result.IncidentsUpdated,
		"noise_reduction_pct": result.NoiseReductionPct,
	})

	return result, nil
}

// processGroup merges one alert group into an existing open incident or
// creates a new one, then acknowledges the folded alerts.
func (s *CorrelationService) processGroup(companyID uint, group []database.Alert, criticalAssets database.StringList, now time.Time, result *CorrelationResult) error {
	first := group[0]

	incident, err := s.findOpenIncident(companyID, first.Signature, first.AssetID, now.Add(-incidentDedupWindow))
	if err != nil {
		return err
	}

	if incident != nil {
		if err := s.mergeIntoIncident(incident, group, criticalAssets, now); err != nil {
			return err
		}
		result.IncidentsUpdated++
		return nil
	}

	incident, err = s.createIncident(companyID, group, criticalAssets, now)
	if err != nil {
		return err
	}
	result.IncidentsCreated++

	// Creation side effects are best-effort: a failed notification must
	// not fail the correlation run.
	if incident.Severity == database.SeverityHigh || incident.Severity == database.SeverityCritical {
		s.notifyIncidentCreated(incident)
	}
	return nil
}

// findOpenIncident looks up a non-resolved incident for the same
// (signature, asset) created after since.
func (s *CorrelationService) findOpenIncident(companyID uint, signature, assetID string, since time.Time) (*database.Incident, error) {
	var incident database.Incident
	err := s.db.Where("company_id = ? AND signature = ? AND asset_id = ? AND status IN ? AND created_at > ?",
		companyID, signature, assetID, database.OpenIncidentStatuses(), since).
		Order("created_at DESC").First(&incident).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// mergeIntoIncident folds new alerts into an existing incident: alert set
// and tool sources are unioned, the priority score recomputed. The SLA
// snapshot is deliberately left untouched.
func (s *CorrelationService) mergeIntoIncident(incident *database.Incident, group []database.Alert, criticalAssets database.StringList, now time.Time) error {
	newAlertIDs := make([]uint, 0, len(group))
	for _, alert := range group {
		if alert.IncidentID == nil || *alert.IncidentID != incident.ID {
			newAlertIDs = append(newAlertIDs, alert.ID)
		}
		if !incident.ToolSources.Contains(alert.ToolSource) {
			incident.ToolSources = append(incident.ToolSources, alert.ToolSource)
		}
	}

	incident.AlertCount += len(newAlertIDs)
	incident.Description = buildDescription(incident)
	incident.PriorityScore = ScorePriority(incident, criticalAssets, now)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(incident).Error; err != nil {
			return err
		}
		return acknowledgeAlerts(tx, newAlertIDs, incident.ID)
	})
	if err != nil {
		return err
	}

	publish(s.publisher, EventIncidentUpdated, map[string]interface{}{
		"incident_uuid":  incident.UUID,
		"company_id":     incident.CompanyID,
		"alert_count":    incident.AlertCount,
		"priority_score": incident.PriorityScore,
	})
	return nil
}

// createIncident builds a new incident from an alert group. Severity and
// asset name come from the first alert; the SLA snapshot is frozen here
// and never recomputed.
func (s *CorrelationService) createIncident(companyID uint, group []database.Alert, criticalAssets database.StringList, now time.Time) (*database.Incident, error) {
	first := group[0]

	incident := &database.Incident{
		UUID:       uuid.New().String(),
		CompanyID:  companyID,
		Signature:  first.Signature,
		AssetID:    first.AssetID,
		AssetName:  first.AssetName,
		Category:   ClassifyCategory(first.Signature, first.AssetName),
		Severity:   first.Severity,
		AlertCount: len(group),
		Status:     database.IncidentStatusNew,
		CreatedAt:  now,
	}

	for _, alert := range group {
		if !incident.ToolSources.Contains(alert.ToolSource) {
			incident.ToolSources = append(incident.ToolSources, alert.ToolSource)
		}
	}
	incident.Description = buildDescription(incident)
	incident.PriorityScore = ScorePriority(incident, criticalAssets, now)

	snapshot, err := s.sla.CalculateDeadlines(companyID, incident.Severity, now)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate SLA deadlines: %w", err)
	}
	snapshot.Apply(incident)

	alertIDs := make([]uint, len(group))
	for i, alert := range group {
		alertIDs[i] = alert.ID
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(incident).Error; err != nil {
			return err
		}
		return acknowledgeAlerts(tx, alertIDs, incident.ID)
	})
	if err != nil {
		return nil, err
	}

	publish(s.publisher, EventIncidentCreated, map[string]interface{}{
		"incident_uuid":  incident.UUID,
		"company_id":     incident.CompanyID,
		"signature":      incident.Signature,
		"asset_id":       incident.AssetID,
		"severity":       incident.Severity,
		"priority_score": incident.PriorityScore,
	})
	return incident, nil
}

// notifyIncidentCreated alerts the company's managers about a new
// high/critical incident. Best-effort.
func (s *CorrelationService) notifyIncidentCreated(incident *database.Incident) {
	managers, err := database.FindUsersByRole(s.db, incident.CompanyID, database.RoleManager)
	if err != nil {
		log.Printf("Failed to resolve managers for company %d: %v", incident.CompanyID, err)
		return
	}
	for _, manager := range managers {
		notifyBestEffort(s.notifier, manager.ID, "incident_created", map[string]interface{}{
			"incident_uuid": incident.UUID,
			"severity":      string(incident.Severity),
			"description":   incident.Description,
		})
	}
}

// criticalAssets loads the company's critical asset list for scoring.
func (s *CorrelationService) criticalAssets(companyID uint) (database.StringList, error) {
	var company database.Company
	err := s.db.First(&company, companyID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return company.CriticalAssets, nil
}

// acknowledgeAlerts flips the folded alerts to acknowledged and links
// them to their incident.
func acknowledgeAlerts(tx *gorm.DB, alertIDs []uint, incidentID uint) error {
	if len(alertIDs) == 0 {
		return nil
	}
	return tx.Model(&database.Alert{}).Where("id IN ?", alertIDs).
		Updates(map[string]interface{}{
			"status":      database.AlertStatusAcknowledged,
			"incident_id": incidentID,
		}).Error
}

// buildDescription renders a short human-readable incident summary.
func buildDescription(incident *database.Incident) string {
	tools := strings.Join(incident.ToolSources, ", ")
	if tools == "" {
		tools = "unknown source"
	}
	return fmt.Sprintf("%s on %s (%d alerts via %s)",
		incident.Signature, incident.AssetName, incident.AlertCount, tools)
}
