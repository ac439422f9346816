package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for JSON object columns (JSONB on PostgreSQL,
// TEXT on SQLite).
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a JSON-encoded list of strings stored in a single column.
type StringList []string

// Scan implements the sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}

// Contains reports whether the list contains v.
func (s StringList) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// UintList is a JSON-encoded list of record IDs stored in a single column.
type UintList []uint

// Scan implements the sql.Scanner interface
func (u *UintList) Scan(value interface{}) error {
	if value == nil {
		*u = nil
		return nil
	}
	bytes, ok := toBytes(value)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, u)
}

// Value implements the driver.Valuer interface
func (u UintList) Value() (driver.Value, error) {
	if u == nil {
		return json.Marshal([]uint{})
	}
	return json.Marshal(u)
}

// Contains reports whether the list contains id.
func (u UintList) Contains(id uint) bool {
	for _, item := range u {
		if item == id {
			return true
		}
	}
	return false
}

// toBytes normalizes driver values: SQLite hands JSON columns back as
// strings, PostgreSQL as []byte.
func toBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// Company represents a tenant serviced by the MSP
type Company struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UUID           string     `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	CriticalAssets StringList `gorm:"type:text" json:"critical_assets"` // asset IDs that bump priority
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Company) TableName() string {
	return "companies"
}

// UserRole represents a user's role in the platform
type UserRole string

const (
	RoleMSPAdmin     UserRole = "msp_admin" // global, not scoped to a company
	RoleCompanyAdmin UserRole = "company_admin"
	RoleManager      UserRole = "manager"
	RoleTechnician   UserRole = "technician"
)

// User represents a platform user. MSP admins have no company scope.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CompanyID *uint     `gorm:"index" json:"company_id,omitempty"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Role      UserRole  `gorm:"type:varchar(50);not null;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// AlertSeverity represents normalized severity levels
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// ValidSeverities lists all severities from lowest to highest.
func ValidSeverities() []AlertSeverity {
	return []AlertSeverity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// AlertStatus represents the lifecycle of a raw alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged" // folded into an incident
	AlertStatusResolved     AlertStatus = "resolved"
)

// Alert represents one raw signal reported by a monitoring tool.
// The correlation engine only ever flips active alerts to acknowledged;
// alerts are never deleted here.
type Alert struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	UUID       string        `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	CompanyID  uint          `gorm:"not null;index" json:"company_id"`
	AssetID    string        `gorm:"size:255;not null;index" json:"asset_id"`
	AssetName  string        `gorm:"size:255" json:"asset_name"`
	Signature  string        `gorm:"size:255;not null;index" json:"signature"` // fault type key, e.g. "disk_full"
	Severity   AlertSeverity `gorm:"type:varchar(20);not null" json:"severity"`
	ToolSource string        `gorm:"size:128" json:"tool_source"` // e.g. "Datadog", "Zabbix"
	Status     AlertStatus   `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	DeliveryID string        `gorm:"uniqueIndex;size:255" json:"delivery_id"` // webhook idempotency key
	IncidentID *uint         `gorm:"index" json:"incident_id,omitempty"`
	Timestamp  time.Time     `gorm:"not null" json:"timestamp"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// IncidentStatus represents the status of an incident
type IncidentStatus string

const (
	IncidentStatusNew        IncidentStatus = "new"
	IncidentStatusInProgress IncidentStatus = "in_progress"
	IncidentStatusQueued     IncidentStatus = "queued" // waiting in the overflow queue
	IncidentStatusEscalated  IncidentStatus = "escalated"
	IncidentStatusResolved   IncidentStatus = "resolved"
)

// OpenIncidentStatuses are the statuses an incident can merge new alerts into.
func OpenIncidentStatuses() []IncidentStatus {
	return []IncidentStatus{
		IncidentStatusNew,
		IncidentStatusInProgress,
		IncidentStatusQueued,
		IncidentStatusEscalated,
	}
}

// Incident represents a deduplicated unit of work built from one or more
// correlated alerts for a single (signature, asset) pair.
//
// The SLA snapshot fields are computed once at creation from the severity
// known at that time and are deliberately never recomputed, so historical
// compliance reports stay stable even if severity changes later.
type Incident struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UUID          string         `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	CompanyID     uint           `gorm:"not null;index" json:"company_id"`
	Signature     string         `gorm:"size:255;not null;index" json:"signature"`
	AssetID       string         `gorm:"size:255;not null;index" json:"asset_id"`
	AssetName     string         `gorm:"size:255" json:"asset_name"`
	Category      string         `gorm:"size:64" json:"category"` // network, database, security, ...
	Description   string         `gorm:"type:text" json:"description"`
	Severity      AlertSeverity  `gorm:"type:varchar(20);not null" json:"severity"`
	AlertCount    int            `gorm:"default:0" json:"alert_count"`
	ToolSources   StringList     `gorm:"type:text" json:"tool_sources"`
	PriorityScore float64        `gorm:"default:0" json:"priority_score"`
	Status        IncidentStatus `gorm:"type:varchar(20);not null;default:'new';index" json:"status"`

	// Assignment
	AssignedTo       *uint      `gorm:"index" json:"assigned_to,omitempty"`
	AssignedAt       *time.Time `json:"assigned_at,omitempty"`
	AssignmentMethod string     `gorm:"size:20" json:"assignment_method"` // auto, manual

	// SLA snapshot, frozen at creation
	SLAEnabled            bool       `gorm:"default:false" json:"sla_enabled"`
	ResponseDeadline      *time.Time `json:"response_deadline,omitempty"`
	ResolutionDeadline    *time.Time `json:"resolution_deadline,omitempty"`
	ResponseTimeMinutes   int        `json:"response_time_minutes"`
	ResolutionTimeMinutes int        `json:"resolution_time_minutes"`

	// Escalation
	Escalated        bool   `gorm:"default:false" json:"escalated"`
	EscalationLevel  int    `gorm:"default:0" json:"escalation_level"`
	EscalationReason string `gorm:"size:64" json:"escalation_reason"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (Incident) TableName() string {
	return "incidents"
}

// IsOpen reports whether the incident can still receive alerts and
// SLA checks.
func (i *Incident) IsOpen() bool {
	return i.Status != IncidentStatusResolved
}

// GetSeverityEmoji returns an emoji for the alert severity
func GetSeverityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityCritical:
		return ":red_circle:"
	case SeverityHigh:
		return ":large_orange_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}
