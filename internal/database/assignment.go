package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// AssignmentStrategy selects how a technician is picked among candidates
type AssignmentStrategy string

const (
	StrategyRoundRobin  AssignmentStrategy = "round_robin"
	StrategyLeastLoaded AssignmentStrategy = "least_loaded"
	StrategySkillMatch  AssignmentStrategy = "skill_match"
	StrategyLoadBalance AssignmentStrategy = "load_balance"
)

// RuleConditions describes when an assignment rule applies to an incident.
// All set conditions must match.
type RuleConditions struct {
	Severity         AlertSeverity `json:"severity,omitempty"`           // exact match
	MinPriorityScore *float64      `json:"min_priority_score,omitempty"` // inclusive
	MaxPriorityScore *float64      `json:"max_priority_score,omitempty"` // inclusive
	CategoryContains string        `json:"category_contains,omitempty"`  // substring of category/description
	ToolSources      []string      `json:"tool_sources,omitempty"`       // any overlap
}

// Scan implements the sql.Scanner interface
func (c *RuleConditions) Scan(value interface{}) error {
	if value == nil {
		*c = RuleConditions{}
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, c)
}

// Value implements the driver.Valuer interface
func (c RuleConditions) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// AssignmentRule maps matching incidents to a pool of technicians and a
// selection strategy. Rules are evaluated in priority order, higher first.
type AssignmentRule struct {
	ID                uint               `gorm:"primaryKey" json:"id"`
	CompanyID         uint               `gorm:"not null;index" json:"company_id"`
	Name              string             `gorm:"size:255;not null" json:"name"`
	Enabled           bool               `gorm:"default:true" json:"enabled"`
	Priority          int                `gorm:"default:0" json:"priority"` // tie-break between rules, higher first
	Conditions        RuleConditions     `gorm:"type:text" json:"conditions"`
	RequiredSkills    StringList         `gorm:"type:text" json:"required_skills"`
	TargetTechnicians UintList           `gorm:"type:text" json:"target_technicians"`
	Strategy          AssignmentStrategy `gorm:"type:varchar(20);default:'least_loaded'" json:"assignment_strategy"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func (AssignmentRule) TableName() string {
	return "assignment_rules"
}

// GetEnabledAssignmentRules returns the company's enabled rules ordered by
// priority descending.
func GetEnabledAssignmentRules(db *gorm.DB, companyID uint) ([]AssignmentRule, error) {
	var rules []AssignmentRule
	err := db.Where("company_id = ? AND enabled = ?", companyID, true).
		Order("priority DESC, id ASC").Find(&rules).Error
	return rules, err
}

// TechnicianAvailability represents whether a technician can take work
type TechnicianAvailability string

const (
	AvailabilityAvailable TechnicianAvailability = "available"
	AvailabilityBusy      TechnicianAvailability = "busy"
	AvailabilityOffline   TechnicianAvailability = "offline"
)

// DefaultWorkloadMax is the default concurrent incident cap per technician.
const DefaultWorkloadMax = 10

// TechnicianSkills tracks a technician's skill set and current workload
type TechnicianSkills struct {
	ID              uint                   `gorm:"primaryKey" json:"id"`
	UserID          uint                   `gorm:"uniqueIndex;not null" json:"user_id"`
	CompanyID       uint                   `gorm:"not null;index" json:"company_id"`
	Skills          StringList             `gorm:"type:text" json:"skills"`
	WorkloadCurrent int                    `gorm:"default:0" json:"workload_current"`
	WorkloadMax     int                    `gorm:"default:10" json:"workload_max"`
	Availability    TechnicianAvailability `gorm:"type:varchar(20);default:'available'" json:"availability"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

func (TechnicianSkills) TableName() string {
	return "technician_skills"
}

// HasCapacity reports whether the technician can take another incident.
func (t *TechnicianSkills) HasCapacity() bool {
	return t.WorkloadCurrent < t.WorkloadMax
}

// HasSkills reports whether the technician possesses every required skill.
func (t *TechnicianSkills) HasSkills(required []string) bool {
	for _, skill := range required {
		if !t.Skills.Contains(skill) {
			return false
		}
	}
	return true
}

// ReserveCapacity atomically increments the technician's workload if and
// only if there is spare capacity. Returns false when the technician is
// already at workload_max. The check and the increment are a single
// conditional UPDATE so concurrent assignments cannot overshoot the cap.
func ReserveCapacity(db *gorm.DB, userID uint) (bool, error) {
	result := db.Model(&TechnicianSkills{}).
		Where("user_id = ? AND workload_current < workload_max", userID).
		Update("workload_current", gorm.Expr("workload_current + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseCapacity decrements the technician's workload, never below zero.
func ReleaseCapacity(db *gorm.DB, userID uint) error {
	return db.Model(&TechnicianSkills{}).
		Where("user_id = ? AND workload_current > 0", userID).
		Update("workload_current", gorm.Expr("workload_current - 1")).Error
}

// OnCallShift names the technician on duty for a company during a window
type OnCallShift struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CompanyID uint      `gorm:"not null;index" json:"company_id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	StartsAt  time.Time `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OnCallShift) TableName() string {
	return "on_call_shifts"
}

// OverflowStatus represents the state of an overflow queue entry
type OverflowStatus string

const (
	OverflowStatusQueued   OverflowStatus = "queued"
	OverflowStatusAssigned OverflowStatus = "assigned"
)

// OverflowQueueEntry holds an incident that could not be assigned because
// no technician had spare capacity. Entries are replayed in priority order
// when capacity frees up and deleted once assignment succeeds.
type OverflowQueueEntry struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	IncidentID    uint           `gorm:"uniqueIndex;not null" json:"incident_id"`
	CompanyID     uint           `gorm:"not null;index" json:"company_id"`
	PriorityScore float64        `gorm:"default:0" json:"priority_score"`
	Severity      AlertSeverity  `gorm:"type:varchar(20)" json:"severity"`
	Status        OverflowStatus `gorm:"type:varchar(20);default:'queued';index" json:"status"`
	Notified      bool           `gorm:"default:false" json:"notified"`
	QueuedAt      time.Time      `gorm:"not null" json:"queued_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (OverflowQueueEntry) TableName() string {
	return "overflow_queue_entries"
}
