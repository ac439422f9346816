package services

import (
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
)

// AssignmentService matches incidents against tenant assignment rules and
// picks a technician with spare capacity
type AssignmentService struct {
	db        *gorm.DB
	locks     *KeyedMutex
	overflow  *OverflowQueue
	onCall    OnCallProvider
	notifier  Notifier
	publisher Publisher
	audit     AuditSink
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(db *gorm.DB, locks *KeyedMutex, overflow *OverflowQueue, onCall OnCallProvider, notifier Notifier, publisher Publisher, audit AuditSink) *AssignmentService {
	return &AssignmentService{
		db:        db,
		locks:     locks,
		overflow:  overflow,
		onCall:    onCall,
		notifier:  notifier,
		publisher: publisher,
		audit:     audit,
	}
}

// AssignmentResult summarizes one assignment attempt. An unassignable
// incident is a normal business outcome, not an error.
type AssignmentResult struct {
	Success    bool   `json:"success"`
	AssignedTo *uint  `json:"assigned_to,omitempty"`
	Reason     string `json:"reason"`
	Queued     bool   `json:"queued"`
	RuleName   string `json:"rule_name,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
}

// AssignIncident attempts to auto-assign an incident: the highest
// priority matching rule selects the candidate pool and strategy, the
// current on-call technician short-circuits candidate resolution when
// they have spare capacity, and capacity reservation is atomic per
// technician. When nobody has capacity the incident goes to the overflow
// queue.
func (s *AssignmentService) AssignIncident(incidentUUID string) (*AssignmentResult, error) {
	var incident database.Incident
	if err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error; err != nil {
		return nil, err
	}

	s.locks.Lock(incident.CompanyID)
	defer s.locks.Unlock(incident.CompanyID)

	// Re-read under the lock: a concurrent run may have assigned it.
	if err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error; err != nil {
		return nil, err
	}

	if !incident.IsOpen() {
		return &AssignmentResult{Success: false, Reason: "incident is resolved"}, nil
	}
	if incident.AssignedTo != nil {
		return &AssignmentResult{Success: false, Reason: "incident is already assigned"}, nil
	}

	rules, err := database.GetEnabledAssignmentRules(s.db, incident.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment rules: %w", err)
	}

	rule := firstMatchingRule(rules, &incident)
	if rule == nil {
		return &AssignmentResult{Success: false, Reason: "no matching rule"}, nil
	}

	candidates, err := s.resolveCandidates(&incident, rule)
	if err != nil {
		return nil, err
	}

	for len(candidates) > 0 {
		idx := selectCandidate(candidates, rule.Strategy, incident.Description)
		chosen := candidates[idx]

		reserved, err := database.ReserveCapacity(s.db, chosen.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve capacity for user %d: %w", chosen.UserID, err)
		}
		if !reserved {
			// Lost a capacity race with another tenant's assignment;
			// drop the candidate and pick again.
			candidates = append(candidates[:idx], candidates[idx+1:]...)
			continue
		}

		if err := s.commitAssignment(&incident, chosen.UserID, rule); err != nil {
			return nil, err
		}

		userID := chosen.UserID
		return &AssignmentResult{
			Success:    true,
			AssignedTo: &userID,
			Reason:     "assigned",
			RuleName:   rule.Name,
			Strategy:   string(rule.Strategy),
		}, nil
	}

	if err := s.overflow.Enqueue(&incident); err != nil {
		return nil, err
	}
	return &AssignmentResult{Success: false, Reason: "no technician capacity", Queued: true}, nil
}

// resolveCandidates returns the technicians eligible for an incident
// under a rule. The on-call technician short-circuits the pool when on
// duty with spare capacity.
func (s *AssignmentService) resolveCandidates(incident *database.Incident, rule *database.AssignmentRule) ([]database.TechnicianSkills, error) {
	if s.onCall != nil {
		tech, err := s.onCall.CurrentOnCall(incident.CompanyID)
		if err != nil {
			// On-call schedules are an optional collaborator; fall back
			// to the regular pool on failure.
			log.Printf("On-call lookup for company %d failed: %v", incident.CompanyID, err)
		} else if tech != nil && tech.HasCapacity() && tech.Availability != database.AvailabilityOffline {
			return []database.TechnicianSkills{*tech}, nil
		}
	}

	var techs []database.TechnicianSkills
	err := s.db.Where("company_id = ? AND availability = ?",
		incident.CompanyID, database.AvailabilityAvailable).
		Order("id ASC").Find(&techs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load technicians: %w", err)
	}

	candidates := make([]database.TechnicianSkills, 0, len(techs))
	for _, tech := range techs {
		if len(rule.TargetTechnicians) > 0 && !rule.TargetTechnicians.Contains(tech.UserID) {
			continue
		}
		if !tech.HasSkills(rule.RequiredSkills) {
			continue
		}
		if !tech.HasCapacity() {
			continue
		}
		candidates = append(candidates, tech)
	}
	return candidates, nil
}

// commitAssignment writes the assignment onto the incident and emits the
// side effects. Capacity has already been reserved.
func (s *AssignmentService) commitAssignment(incident *database.Incident, userID uint, rule *database.AssignmentRule) error {
	now := time.Now()
	err := s.db.Model(incident).Updates(map[string]interface{}{
		"assigned_to":       userID,
		"assigned_at":       now,
		"status":            database.IncidentStatusInProgress,
		"assignment_method": "auto",
	}).Error
	if err != nil {
		return fmt.Errorf("failed to record assignment: %w", err)
	}
	incident.AssignedTo = &userID
	incident.AssignedAt = &now
	incident.Status = database.IncidentStatusInProgress

	// The incident may have been waiting on the overflow queue.
	if err := s.overflow.Remove(incident.ID); err != nil {
		log.Printf("Failed to remove overflow entry for %s: %v", incident.UUID, err)
	}

	if s.audit != nil {
		s.audit.Record("incident_assigned", "incident", incident.UUID, map[string]interface{}{
			"assigned_to": userID,
			"rule":        rule.Name,
			"strategy":    string(rule.Strategy),
		})
	}

	notifyBestEffort(s.notifier, userID, "incident_assigned", map[string]interface{}{
		"incident_uuid": incident.UUID,
		"severity":      string(incident.Severity),
		"description":   incident.Description,
	})

	publish(s.publisher, EventIncidentAssigned, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"company_id":    incident.CompanyID,
		"assigned_to":   userID,
	})
	return nil
}

// AssignManually assigns an incident to a specific technician, bypassing
// the rule engine but not the capacity cap.
func (s *AssignmentService) AssignManually(incidentUUID string, technicianID uint) (*AssignmentResult, error) {
	var incident database.Incident
	if err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error; err != nil {
		return nil, err
	}

	s.locks.Lock(incident.CompanyID)
	defer s.locks.Unlock(incident.CompanyID)

	if err := s.db.Where("uuid = ?", incidentUUID).First(&incident).Error; err != nil {
		return nil, err
	}

	if !incident.IsOpen() {
		return &AssignmentResult{Success: false, Reason: "incident is resolved"}, nil
	}
	if incident.AssignedTo != nil {
		return &AssignmentResult{Success: false, Reason: "incident is already assigned"}, nil
	}

	var tech database.TechnicianSkills
	if err := s.db.Where("user_id = ? AND company_id = ?", technicianID, incident.CompanyID).First(&tech).Error; err != nil {
		return nil, fmt.Errorf("technician %d not found for company %d: %w", technicianID, incident.CompanyID, err)
	}

	reserved, err := database.ReserveCapacity(s.db, technicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve capacity for user %d: %w", technicianID, err)
	}
	if !reserved {
		return &AssignmentResult{Success: false, Reason: "technician has no capacity"}, nil
	}

	now := time.Now()
	err = s.db.Model(&incident).Updates(map[string]interface{}{
		"assigned_to":       technicianID,
		"assigned_at":       now,
		"status":            database.IncidentStatusInProgress,
		"assignment_method": "manual",
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to record assignment: %w", err)
	}
	incident.AssignedTo = &technicianID
	incident.AssignedAt = &now
	incident.Status = database.IncidentStatusInProgress

	if err := s.overflow.Remove(incident.ID); err != nil {
		log.Printf("Failed to remove overflow entry for %s: %v", incident.UUID, err)
	}

	if s.audit != nil {
		s.audit.Record("incident_assigned", "incident", incident.UUID, map[string]interface{}{
			"assigned_to": technicianID,
			"method":      "manual",
		})
	}

	notifyBestEffort(s.notifier, technicianID, "incident_assigned", map[string]interface{}{
		"incident_uuid": incident.UUID,
		"severity":      string(incident.Severity),
		"description":   incident.Description,
	})

	publish(s.publisher, EventIncidentAssigned, map[string]interface{}{
		"incident_uuid": incident.UUID,
		"company_id":    incident.CompanyID,
		"assigned_to":   technicianID,
	})

	userID := technicianID
	return &AssignmentResult{Success: true, AssignedTo: &userID, Reason: "assigned", Strategy: "manual"}, nil
}

// QueueResult summarizes one overflow replay run
type QueueResult struct {
	Processed int `json:"processed"`
	Remaining int `json:"remaining"`
}

// ProcessQueue replays the company's overflow queue highest priority
// first. Processing stops at the first entry that still cannot be
// assigned: overflow means capacity exhaustion, so lower-priority entries
// cannot succeed either.
func (s *AssignmentService) ProcessQueue(companyID uint) (*QueueResult, error) {
	entries, err := s.overflow.QueuedEntries(companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load overflow queue: %w", err)
	}

	result := &QueueResult{Remaining: len(entries)}
	for _, entry := range entries {
		var incident database.Incident
		if err := s.db.First(&incident, entry.IncidentID).Error; err != nil {
			log.Printf("Overflow entry %d references missing incident %d, removing: %v",
				entry.ID, entry.IncidentID, err)
			if err := s.overflow.Remove(entry.IncidentID); err != nil {
				log.Printf("Failed to remove stale overflow entry %d: %v", entry.ID, err)
			}
			result.Remaining--
			continue
		}

		assignment, err := s.AssignIncident(incident.UUID)
		if err != nil {
			return nil, err
		}
		if !assignment.Success {
			break
		}
		result.Processed++
		result.Remaining--
	}
	return result, nil
}

// firstMatchingRule returns the first rule (already ordered by priority
// descending) whose conditions all match the incident.
func firstMatchingRule(rules []database.AssignmentRule, incident *database.Incident) *database.AssignmentRule {
	for i := range rules {
		if ruleMatches(&rules[i], incident) {
			return &rules[i]
		}
	}
	return nil
}

// ruleMatches checks every set condition; unset conditions always match.
func ruleMatches(rule *database.AssignmentRule, incident *database.Incident) bool {
	cond := rule.Conditions

	if cond.Severity != "" && cond.Severity != incident.Severity {
		return false
	}
	if cond.MinPriorityScore != nil && incident.PriorityScore < *cond.MinPriorityScore {
		return false
	}
	if cond.MaxPriorityScore != nil && incident.PriorityScore > *cond.MaxPriorityScore {
		return false
	}
	if cond.CategoryContains != "" {
		haystack := strings.ToLower(incident.Category + " " + incident.Description)
		if !strings.Contains(haystack, strings.ToLower(cond.CategoryContains)) {
			return false
		}
	}
	if len(cond.ToolSources) > 0 {
		overlap := false
		for _, source := range cond.ToolSources {
			if incident.ToolSources.Contains(source) {
				overlap = true
				break
			}
		}
		if !overlap {
			return false
		}
	}
	return true
}

// selectCandidate picks one technician index according to the strategy.
func selectCandidate(candidates []database.TechnicianSkills, strategy database.AssignmentStrategy, description string) int {
	switch strategy {
	case database.StrategyLeastLoaded:
		return leastLoaded(candidates)
	case database.StrategySkillMatch:
		return bestSkillMatch(candidates, description)
	case database.StrategyLoadBalance:
		return bestLoadBalance(candidates, description)
	case database.StrategyRoundRobin:
		fallthrough
	default:
		return rand.IntN(len(candidates))
	}
}

// leastLoaded returns the candidate with the lowest current workload,
// first-seen on ties.
func leastLoaded(candidates []database.TechnicianSkills) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].WorkloadCurrent < candidates[best].WorkloadCurrent {
			best = i
		}
	}
	return best
}

// skillMatchCount counts how many of the technician's skills appear as
// case-insensitive substrings of the incident description.
func skillMatchCount(tech *database.TechnicianSkills, description string) int {
	haystack := strings.ToLower(description)
	count := 0
	for _, skill := range tech.Skills {
		if skill != "" && strings.Contains(haystack, strings.ToLower(skill)) {
			count++
		}
	}
	return count
}

// bestSkillMatch returns the candidate with the most skill hits,
// first-seen on ties.
func bestSkillMatch(candidates []database.TechnicianSkills, description string) int {
	best := 0
	bestCount := skillMatchCount(&candidates[0], description)
	for i := 1; i < len(candidates); i++ {
		if count := skillMatchCount(&candidates[i], description); count > bestCount {
			best = i
			bestCount = count
		}
	}
	return best
}

// bestLoadBalance scores candidates by skill fit weighted double plus
// normalized spare capacity, highest wins.
func bestLoadBalance(candidates []database.TechnicianSkills, description string) int {
	best := 0
	bestScore := loadBalanceScore(&candidates[0], description)
	for i := 1; i < len(candidates); i++ {
		if score := loadBalanceScore(&candidates[i], description); score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

func loadBalanceScore(tech *database.TechnicianSkills, description string) float64 {
	score := float64(skillMatchCount(tech, description)) * 2
	if tech.WorkloadMax > 0 {
		score += float64(tech.WorkloadMax-tech.WorkloadCurrent) / float64(tech.WorkloadMax)
	}
	return score
}
