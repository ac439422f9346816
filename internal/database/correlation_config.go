package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DefaultAggregationKey groups alerts by asset and fault signature.
const DefaultAggregationKey = "asset|signature"

// Time window bounds for alert correlation, in minutes.
const (
	MinTimeWindowMinutes = 5
	MaxTimeWindowMinutes = 15
)

// CorrelationConfig controls alert correlation behavior for one company
type CorrelationConfig struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	CompanyID            uint      `gorm:"uniqueIndex;not null" json:"company_id"`
	TimeWindowMinutes    int       `gorm:"default:10" json:"time_window_minutes" validate:"min=5,max=15"`
	AggregationKey       string    `gorm:"size:64;default:'asset|signature'" json:"aggregation_key"`
	AutoCorrelate        bool      `gorm:"default:true" json:"auto_correlate"`
	MinAlertsForIncident int       `gorm:"default:1" json:"min_alerts_for_incident" validate:"min=1"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (CorrelationConfig) TableName() string {
	return "correlation_configs"
}

// NewDefaultCorrelationConfig returns a config with default values
func NewDefaultCorrelationConfig(companyID uint) *CorrelationConfig {
	return &CorrelationConfig{
		CompanyID:            companyID,
		TimeWindowMinutes:    10,
		AggregationKey:       DefaultAggregationKey,
		AutoCorrelate:        true,
		MinAlertsForIncident: 1,
	}
}

// Validate rejects out-of-range settings. Invalid values are reported,
// never silently clamped.
func (c *CorrelationConfig) Validate() error {
	if c.TimeWindowMinutes < MinTimeWindowMinutes || c.TimeWindowMinutes > MaxTimeWindowMinutes {
		return fmt.Errorf("time_window_minutes must be between %d and %d, got %d",
			MinTimeWindowMinutes, MaxTimeWindowMinutes, c.TimeWindowMinutes)
	}
	if c.MinAlertsForIncident < 1 {
		return fmt.Errorf("min_alerts_for_incident must be at least 1, got %d", c.MinAlertsForIncident)
	}
	if c.AggregationKey == "" {
		return fmt.Errorf("aggregation_key must not be empty")
	}
	return nil
}

// GetOrCreateCorrelationConfig retrieves the company's correlation config,
// creating the default lazily on first access.
func GetOrCreateCorrelationConfig(db *gorm.DB, companyID uint) (*CorrelationConfig, error) {
	var config CorrelationConfig
	result := db.Where("company_id = ?", companyID).First(&config)
	if result.Error == gorm.ErrRecordNotFound {
		config = *NewDefaultCorrelationConfig(companyID)
		if err := db.Create(&config).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &config, nil
}

// UpdateCorrelationConfig validates and persists config changes.
func UpdateCorrelationConfig(db *gorm.DB, config *CorrelationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return db.Save(config).Error
}
