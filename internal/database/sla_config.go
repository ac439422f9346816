package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Breach notification kinds used in escalation chain notify_on lists.
const (
	NotifyResponseSLAWarning  = "response_sla_warning"
	NotifyResponseSLABreach   = "response_sla_breach"
	NotifyResolutionSLABreach = "resolution_sla_breach"
)

// MinutesBySeverity maps severity → target minutes, stored as a JSON column.
type MinutesBySeverity map[AlertSeverity]int

// Scan implements the sql.Scanner interface
func (m *MinutesBySeverity) Scan(value interface{}) error {
	if value == nil {
		*m = make(MinutesBySeverity)
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface
func (m MinutesBySeverity) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(MinutesBySeverity{})
	}
	return json.Marshal(m)
}

// EscalationStep is one level of an escalation chain: which role to
// notify and on which breach kinds.
type EscalationStep struct {
	Level    int      `json:"level"`
	Role     UserRole `json:"role"`
	NotifyOn []string `json:"notify_on"`
}

// Matches reports whether this step should fire for any of the given
// notification kinds.
func (s EscalationStep) Matches(kinds []string) bool {
	for _, k := range kinds {
		for _, n := range s.NotifyOn {
			if n == k {
				return true
			}
		}
	}
	return false
}

// EscalationChain is an ordered list of escalation steps stored as JSON.
type EscalationChain []EscalationStep

// Scan implements the sql.Scanner interface
func (c *EscalationChain) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, c)
}

// Value implements the driver.Valuer interface
func (c EscalationChain) Value() (driver.Value, error) {
	if c == nil {
		return json.Marshal(EscalationChain{})
	}
	return json.Marshal(c)
}

// SLAConfig holds per-company SLA targets and the escalation chain
type SLAConfig struct {
	ID                            uint              `gorm:"primaryKey" json:"id"`
	CompanyID                     uint              `gorm:"uniqueIndex;not null" json:"company_id"`
	Enabled                       bool              `gorm:"default:true" json:"enabled"`
	BusinessHoursOnly             bool              `gorm:"default:false" json:"business_hours_only"`
	ResponseTimeMinutes           MinutesBySeverity `gorm:"type:text" json:"response_time_minutes"`
	ResolutionTimeMinutes         MinutesBySeverity `gorm:"type:text" json:"resolution_time_minutes"`
	EscalationEnabled             bool              `gorm:"default:true" json:"escalation_enabled"`
	EscalationBeforeBreachMinutes int               `gorm:"default:30" json:"escalation_before_breach_minutes"`
	EscalationChain               EscalationChain   `gorm:"type:text" json:"escalation_chain"`
	RenotifyOnBreach              bool              `gorm:"default:false" json:"renotify_on_breach"` // reminder semantics on persistent breach
	CreatedAt                     time.Time         `json:"created_at"`
	UpdatedAt                     time.Time         `json:"updated_at"`
}

func (SLAConfig) TableName() string {
	return "sla_configs"
}

// NewDefaultSLAConfig returns the hard-coded per-severity defaults:
// critical 30/240, high 120/480, medium 480/1440, low 1440/2880 minutes.
func NewDefaultSLAConfig(companyID uint) *SLAConfig {
	return &SLAConfig{
		CompanyID:         companyID,
		Enabled:           true,
		BusinessHoursOnly: false,
		ResponseTimeMinutes: MinutesBySeverity{
			SeverityCritical: 30,
			SeverityHigh:     120,
			SeverityMedium:   480,
			SeverityLow:      1440,
		},
		ResolutionTimeMinutes: MinutesBySeverity{
			SeverityCritical: 240,
			SeverityHigh:     480,
			SeverityMedium:   1440,
			SeverityLow:      2880,
		},
		EscalationEnabled:             true,
		EscalationBeforeBreachMinutes: 30,
		EscalationChain: EscalationChain{
			{Level: 1, Role: RoleManager, NotifyOn: []string{NotifyResponseSLAWarning, NotifyResponseSLABreach}},
			{Level: 2, Role: RoleCompanyAdmin, NotifyOn: []string{NotifyResponseSLABreach, NotifyResolutionSLABreach}},
			{Level: 3, Role: RoleMSPAdmin, NotifyOn: []string{NotifyResolutionSLABreach}},
		},
	}
}

// Validate rejects malformed SLA settings.
func (c *SLAConfig) Validate() error {
	for _, sev := range ValidSeverities() {
		if m, ok := c.ResponseTimeMinutes[sev]; ok && m <= 0 {
			return fmt.Errorf("response_time_minutes[%s] must be positive, got %d", sev, m)
		}
		if m, ok := c.ResolutionTimeMinutes[sev]; ok && m <= 0 {
			return fmt.Errorf("resolution_time_minutes[%s] must be positive, got %d", sev, m)
		}
	}
	if c.EscalationBeforeBreachMinutes < 0 {
		return fmt.Errorf("escalation_before_breach_minutes must not be negative, got %d", c.EscalationBeforeBreachMinutes)
	}
	for i, step := range c.EscalationChain {
		if step.Level <= 0 {
			return fmt.Errorf("escalation_chain[%d].level must be positive, got %d", i, step.Level)
		}
		if step.Role == "" {
			return fmt.Errorf("escalation_chain[%d].role must not be empty", i)
		}
	}
	return nil
}

// ResponseTarget returns the response target for a severity, falling back
// to the hard-coded default when the config has no entry.
func (c *SLAConfig) ResponseTarget(severity AlertSeverity) int {
	if m, ok := c.ResponseTimeMinutes[severity]; ok {
		return m
	}
	return NewDefaultSLAConfig(c.CompanyID).ResponseTimeMinutes[severity]
}

// ResolutionTarget returns the resolution target for a severity, falling
// back to the hard-coded default when the config has no entry.
func (c *SLAConfig) ResolutionTarget(severity AlertSeverity) int {
	if m, ok := c.ResolutionTimeMinutes[severity]; ok {
		return m
	}
	return NewDefaultSLAConfig(c.CompanyID).ResolutionTimeMinutes[severity]
}

// GetOrCreateSLAConfig retrieves the company's SLA config, creating the
// default lazily on first access.
func GetOrCreateSLAConfig(db *gorm.DB, companyID uint) (*SLAConfig, error) {
	var config SLAConfig
	result := db.Where("company_id = ?", companyID).First(&config)
	if result.Error == gorm.ErrRecordNotFound {
		config = *NewDefaultSLAConfig(companyID)
		if err := db.Create(&config).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &config, nil
}

// UpdateSLAConfig validates and persists config changes.
func UpdateSLAConfig(db *gorm.DB, config *SLAConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return db.Save(config).Error
}
