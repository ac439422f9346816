package services

import (
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
)

// Breach types handled by the SLA engine.
const (
	BreachTypeResponse   = "response"
	BreachTypeResolution = "resolution"
)

// SLAService computes deadlines, classifies breach state and drives the
// escalation chain
type SLAService struct {
	db        *gorm.DB
	locks     *KeyedMutex
	notifier  Notifier
	publisher Publisher
	audit     AuditSink
}

// NewSLAService creates a new SLA service
func NewSLAService(db *gorm.DB, locks *KeyedMutex, notifier Notifier, publisher Publisher, audit AuditSink) *SLAService {
	return &SLAService{
		db:        db,
		locks:     locks,
		notifier:  notifier,
		publisher: publisher,
		audit:     audit,
	}
}

// SLASnapshot holds the deadlines fixed at incident creation
type SLASnapshot struct {
	Enabled               bool      `json:"enabled"`
	ResponseDeadline      time.Time `json:"response_deadline"`
	ResolutionDeadline    time.Time `json:"resolution_deadline"`
	ResponseTimeMinutes   int       `json:"response_time_minutes"`
	ResolutionTimeMinutes int       `json:"resolution_time_minutes"`
}

// Apply copies the snapshot onto an incident.
func (s *SLASnapshot) Apply(incident *database.Incident) {
	incident.SLAEnabled = s.Enabled
	if !s.Enabled {
		return
	}
	response := s.ResponseDeadline
	resolution := s.ResolutionDeadline
	incident.ResponseDeadline = &response
	incident.ResolutionDeadline = &resolution
	incident.ResponseTimeMinutes = s.ResponseTimeMinutes
	incident.ResolutionTimeMinutes = s.ResolutionTimeMinutes
}

// CalculateDeadlines reads the company's SLA config and returns the
// deadline snapshot for an incident of the given severity created at
// createdAt. Deadlines are calendar-time additions; business-hours-only
// scheduling is stored on the config but not yet modeled here.
func (s *SLAService) CalculateDeadlines(companyID uint, severity database.AlertSeverity, createdAt time.Time) (*SLASnapshot, error) {
	config, err := database.GetOrCreateSLAConfig(s.db, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load SLA config: %w", err)
	}

	if !config.Enabled {
		return &SLASnapshot{Enabled: false}, nil
	}

	responseMinutes := config.ResponseTarget(severity)
	resolutionMinutes := config.ResolutionTarget(severity)

	return &SLASnapshot{
		Enabled:               true,
		ResponseDeadline:      createdAt.Add(time.Duration(responseMinutes) * time.Minute),
		ResolutionDeadline:    createdAt.Add(time.Duration(resolutionMinutes) * time.Minute),
		ResponseTimeMinutes:   responseMinutes,
		ResolutionTimeMinutes: resolutionMinutes,
	}, nil
}

// SLAState classifies an incident's position against its deadlines
type SLAState string

const (
	SLAStateNoSLA              SLAState = "no_sla"
	SLAStateOnTrack            SLAState = "on_track"
	SLAStateResponseWarning    SLAState = "response_warning"
	SLAStateResolutionWarning  SLAState = "resolution_warning"
	SLAStateResponseBreached   SLAState = "response_breached"
	SLAStateResolutionBreached SLAState = "resolution_breached"
	SLAStateResolved           SLAState = "resolved"
)

// SLAStatus is the result of a CheckStatus call. For open incidents the
// remaining fields count down to the deadlines; for resolved incidents
// the actual times and met flags are populated instead.
type SLAStatus struct {
	IncidentUUID               string   `json:"incident_uuid"`
	State                      SLAState `json:"state"`
	ResponseBreached           bool     `json:"response_breached"`
	ResolutionBreached         bool     `json:"resolution_breached"`
	ResponseRemainingMinutes   int      `json:"response_remaining_minutes"`
	ResolutionRemainingMinutes int      `json:"resolution_remaining_minutes"`

	ActualResponseMinutes   *int  `json:"actual_response_minutes,omitempty"`
	ActualResolutionMinutes *int  `json:"actual_resolution_minutes,omitempty"`
	ResponseMet             *bool `json:"response_met,omitempty"`
	ResolutionMet           *bool `json:"resolution_met,omitempty"`
}

// CheckStatus classifies an incident against its SLA snapshot.
func (s *SLAService) CheckStatus(incidentUUID string) (*SLAStatus, error) {
	var incident database.Incident
	if err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error; err != nil {
		return nil, err
	}
	return s.checkIncident(&incident, time.Now())
}

// checkIncident is the pure classification step, separated for testing
// with a fixed clock.
func (s *SLAService) checkIncident(incident *database.Incident, now time.Time) (*SLAStatus, error) {
	status := &SLAStatus{IncidentUUID: incident.UUID}

	if !incident.SLAEnabled || incident.ResponseDeadline == nil || incident.ResolutionDeadline == nil {
		status.State = SLAStateNoSLA
		return status, nil
	}

	config, err := database.GetOrCreateSLAConfig(s.db, incident.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load SLA config: %w", err)
	}
	warning := time.Duration(config.EscalationBeforeBreachMinutes) * time.Minute

	if incident.Status == database.IncidentStatusResolved && incident.ResolvedAt != nil {
		return s.resolvedStatus(incident, status), nil
	}

	responded := incident.AssignedAt != nil
	status.ResponseBreached = !responded && now.After(*incident.ResponseDeadline)
	status.ResolutionBreached = now.After(*incident.ResolutionDeadline)
	status.ResponseRemainingMinutes = int(incident.ResponseDeadline.Sub(now).Minutes())
	status.ResolutionRemainingMinutes = int(incident.ResolutionDeadline.Sub(now).Minutes())

	switch {
	case status.ResponseBreached:
		status.State = SLAStateResponseBreached
	case status.ResolutionBreached:
		status.State = SLAStateResolutionBreached
	case !responded && now.After(incident.ResponseDeadline.Add(-warning)):
		status.State = SLAStateResponseWarning
	case now.After(incident.ResolutionDeadline.Add(-warning)):
		status.State = SLAStateResolutionWarning
	default:
		status.State = SLAStateOnTrack
	}
	return status, nil
}

// resolvedStatus computes actual response/resolution times and whether
// each SLA was met.
func (s *SLAService) resolvedStatus(incident *database.Incident, status *SLAStatus) *SLAStatus {
	status.State = SLAStateResolved

	if incident.AssignedAt != nil {
		minutes := int(incident.AssignedAt.Sub(incident.CreatedAt).Minutes())
		met := !incident.AssignedAt.After(*incident.ResponseDeadline)
		status.ActualResponseMinutes = &minutes
		status.ResponseMet = &met
	} else {
		// Resolved without ever being assigned: the response SLA was
		// missed outright.
		met := false
		status.ResponseMet = &met
	}

	minutes := int(incident.ResolvedAt.Sub(incident.CreatedAt).Minutes())
	met := !incident.ResolvedAt.After(*incident.ResolutionDeadline)
	status.ActualResolutionMinutes = &minutes
	status.ResolutionMet = &met
	return status
}

// BreachResult summarizes one HandleBreach call
type BreachResult struct {
	Escalated         bool `json:"escalated"`
	NotificationsSent int  `json:"notifications_sent"`
}

// HandleBreach escalates an incident after an SLA breach: the incident is
// marked escalated and the matching escalation chain levels are notified.
// Escalation is one-shot per breach type: re-running on an incident
// already escalated for the same reason does nothing unless the company
// opted into renotify_on_breach reminder semantics.
func (s *SLAService) HandleBreach(incidentUUID, breachType string) (*BreachResult, error) {
	var incident database.Incident
	if err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error; err != nil {
		return nil, err
	}

	s.locks.Lock(incident.CompanyID)
	defer s.locks.Unlock(incident.CompanyID)

	// Re-read under the lock: a concurrent breach handler may have
	// escalated in the meantime.
	if err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error; err != nil {
		return nil, err
	}

	if !incident.IsOpen() {
		return &BreachResult{}, nil
	}

	config, err := database.GetOrCreateSLAConfig(s.db, incident.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load SLA config: %w", err)
	}
	if !config.EscalationEnabled {
		return &BreachResult{}, nil
	}

	reason := breachType + "_sla_breach"
	if incident.Escalated && incident.EscalationReason == reason && !config.RenotifyOnBreach {
		return &BreachResult{}, nil
	}

	kinds := notificationKinds(breachType)
	sent := 0
	highestLevel := incident.EscalationLevel

	for _, step := range config.EscalationChain {
		if !step.Matches(kinds) {
			continue
		}
		users, err := database.FindUsersByRole(s.db, incident.CompanyID, step.Role)
		if err != nil {
			log.Printf("Failed to resolve role %s for escalation of %s: %v", step.Role, incident.UUID, err)
			continue
		}
		for _, user := range users {
			notifyBestEffort(s.notifier, user.ID, "sla_escalation", map[string]interface{}{
				"incident_uuid": incident.UUID,
				"breach_type":   breachType,
				"level":         step.Level,
				"severity":      string(incident.Severity),
				"description":   incident.Description,
			})
			sent++
		}
		if step.Level > highestLevel {
			highestLevel = step.Level
		}
	}

	err = s.db.Model(&incident).Updates(map[string]interface{}{
		"escalated":         true,
		"escalation_level":  highestLevel,
		"escalation_reason": reason,
		"status":            database.IncidentStatusEscalated,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to mark incident escalated: %w", err)
	}

	if s.audit != nil {
		s.audit.Record("sla_escalation", "incident", incident.UUID, map[string]interface{}{
			"breach_type":        breachType,
			"escalation_level":   highestLevel,
			"notifications_sent": sent,
		})
	}

	publish(s.publisher, EventSLABreach, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"company_id":    incident.CompanyID,
		"breach_type":   breachType,
	})
	publish(s.publisher, EventIncidentEscalated, map[string]interface{}{
		"incident_uuid":    incident.UUID,
		"company_id":       incident.CompanyID,
		"escalation_level": highestLevel,
	})

	return &BreachResult{Escalated: true, NotificationsSent: sent}, nil
}

// notificationKinds maps a breach type to the notify_on kinds that make
// an escalation chain step fire.
func notificationKinds(breachType string) []string {
	switch breachType {
	case BreachTypeResponse:
		return []string{database.NotifyResponseSLAWarning, database.NotifyResponseSLABreach}
	case BreachTypeResolution:
		return []string{database.NotifyResolutionSLABreach}
	default:
		return nil
	}
}

// ComplianceBucket aggregates SLA outcomes for one severity
type ComplianceBucket struct {
	Count                int     `json:"count"`
	ResponseMetPct       float64 `json:"response_met_pct"`
	ResolutionMetPct     float64 `json:"resolution_met_pct"`
	AvgResponseMinutes   float64 `json:"avg_response_minutes"`
	AvgResolutionMinutes float64 `json:"avg_resolution_minutes"`
}

// ComplianceReport aggregates SLA outcomes over resolved incidents
type ComplianceReport struct {
	CompanyID            uint                                         `json:"company_id"`
	Days                 int                                          `json:"days"`
	TotalResolved        int                                          `json:"total_resolved"`
	ResponseMetPct       float64                                      `json:"response_met_pct"`
	ResolutionMetPct     float64                                      `json:"resolution_met_pct"`
	AvgResponseMinutes   float64                                      `json:"avg_response_minutes"`
	AvgResolutionMinutes float64                                      `json:"avg_resolution_minutes"`
	BySeverity           map[database.AlertSeverity]*ComplianceBucket `json:"by_severity"`
}

// Compliance computes aggregate SLA statistics over incidents resolved in
// the last days days, broken down by severity. Only SLA-tracked incidents
// are counted.
func (s *SLAService) Compliance(companyID uint, days int) (*ComplianceReport, error) {
	since := time.Now().AddDate(0, 0, -days)

	var incidents []database.Incident
	err := s.db.Where("company_id = ? AND status = ? AND sla_enabled = ? AND resolved_at > ?",
		companyID, database.IncidentStatusResolved, true, since).Find(&incidents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load resolved incidents: %w", err)
	}

	report := &ComplianceReport{
		CompanyID:  companyID,
		Days:       days,
		BySeverity: make(map[database.AlertSeverity]*ComplianceBucket),
	}

	type tally struct {
		count, responseMet, resolutionMet, responded int
		responseMinutes, resolutionMinutes           float64
	}
	total := tally{}
	bySeverity := make(map[database.AlertSeverity]*tally)

	for i := range incidents {
		status := s.resolvedStatus(&incidents[i], &SLAStatus{IncidentUUID: incidents[i].UUID})

		sev := incidents[i].Severity
		if bySeverity[sev] == nil {
			bySeverity[sev] = &tally{}
		}
		for _, t := range []*tally{&total, bySeverity[sev]} {
			t.count++
			if status.ResponseMet != nil && *status.ResponseMet {
				t.responseMet++
			}
			if status.ResolutionMet != nil && *status.ResolutionMet {
				t.resolutionMet++
			}
			if status.ActualResponseMinutes != nil {
				t.responded++
				t.responseMinutes += float64(*status.ActualResponseMinutes)
			}
			if status.ActualResolutionMinutes != nil {
				t.resolutionMinutes += float64(*status.ActualResolutionMinutes)
			}
		}
	}

	fill := func(t *tally) (metResp, metRes, avgResp, avgRes float64) {
		if t.count == 0 {
			return 0, 0, 0, 0
		}
		metResp = round2(float64(t.responseMet) / float64(t.count) * 100)
		metRes = round2(float64(t.resolutionMet) / float64(t.count) * 100)
		if t.responded > 0 {
			avgResp = round2(t.responseMinutes / float64(t.responded))
		}
		avgRes = round2(t.resolutionMinutes / float64(t.count))
		return
	}

	report.TotalResolved = total.count
	report.ResponseMetPct, report.ResolutionMetPct, report.AvgResponseMinutes, report.AvgResolutionMinutes = fill(&total)
	for sev, t := range bySeverity {
		bucket := &ComplianceBucket{Count: t.count}
		bucket.ResponseMetPct, bucket.ResolutionMetPct, bucket.AvgResponseMinutes, bucket.AvgResolutionMinutes = fill(t)
		report.BySeverity[sev] = bucket
	}
	return report, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
