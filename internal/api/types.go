package api

import (
	"time"

	"github.com/korrelix/korrelix/internal/database"
)

// ========== Auth Types ==========

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the response body for POST /auth/login.
type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

// ========== Alert Ingest Types ==========

// IngestAlert is one raw alert in a webhook delivery.
type IngestAlert struct {
	AssetID    string     `json:"asset_id" validate:"required,max=255"`
	AssetName  string     `json:"asset_name" validate:"omitempty,max=255"`
	Signature  string     `json:"signature" validate:"required,max=255"`
	Severity   string     `json:"severity" validate:"required,oneof=low medium high critical"`
	ToolSource string     `json:"tool_source" validate:"omitempty,max=128"`
	DeliveryID string     `json:"delivery_id" validate:"omitempty,max=255"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// IngestAlertsRequest is the request body for POST /webhook/alerts/{company_uuid}.
type IngestAlertsRequest struct {
	Alerts []IngestAlert `json:"alerts" validate:"required,min=1,dive"`
}

// IngestAlertsResponse reports how a webhook delivery was processed.
type IngestAlertsResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// ========== Incident Types ==========

// AssignIncidentRequest is the request body for POST /api/incidents/{uuid}/assign.
// An empty body runs rule-based auto-assignment.
type AssignIncidentRequest struct {
	TechnicianID *uint `json:"technician_id,omitempty"`
}

// ResolveIncidentRequest is the request body for POST /api/incidents/{uuid}/resolve.
type ResolveIncidentRequest struct {
	ResolvedBy string `json:"resolved_by" validate:"omitempty,max=255"`
}

// ========== Config Types ==========

// UpdateCorrelationConfigRequest is the request body for
// PUT /api/companies/{id}/correlation-config. Unset fields keep their
// current values.
type UpdateCorrelationConfigRequest struct {
	TimeWindowMinutes    *int    `json:"time_window_minutes,omitempty"`
	AggregationKey       *string `json:"aggregation_key,omitempty"`
	AutoCorrelate        *bool   `json:"auto_correlate,omitempty"`
	MinAlertsForIncident *int    `json:"min_alerts_for_incident,omitempty"`
}

// UpdateSLAConfigRequest is the request body for
// PUT /api/companies/{id}/sla-config. Unset fields keep their current
// values.
type UpdateSLAConfigRequest struct {
	Enabled                       *bool                      `json:"enabled,omitempty"`
	BusinessHoursOnly             *bool                      `json:"business_hours_only,omitempty"`
	ResponseTimeMinutes           map[string]int             `json:"response_time_minutes,omitempty"`
	ResolutionTimeMinutes         map[string]int             `json:"resolution_time_minutes,omitempty"`
	EscalationEnabled             *bool                      `json:"escalation_enabled,omitempty"`
	EscalationBeforeBreachMinutes *int                       `json:"escalation_before_breach_minutes,omitempty"`
	EscalationChain               []database.EscalationStep  `json:"escalation_chain,omitempty"`
	RenotifyOnBreach              *bool                      `json:"renotify_on_breach,omitempty"`
}

// ========== Assignment Rule Types ==========

// CreateAssignmentRuleRequest is the request body for
// POST /api/companies/{id}/assignment-rules.
type CreateAssignmentRuleRequest struct {
	Name              string                  `json:"name" validate:"required,min=1,max=255"`
	Enabled           *bool                   `json:"enabled,omitempty"`
	Priority          int                     `json:"priority"`
	Conditions        database.RuleConditions `json:"conditions"`
	RequiredSkills    []string                `json:"required_skills,omitempty"`
	TargetTechnicians []uint                  `json:"target_technicians,omitempty"`
	Strategy          string                  `json:"assignment_strategy" validate:"omitempty,oneof=round_robin least_loaded skill_match load_balance"`
}

// UpdateAssignmentRuleRequest is the request body for
// PUT /api/companies/{id}/assignment-rules/{ruleID}.
type UpdateAssignmentRuleRequest struct {
	Name              *string                  `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Enabled           *bool                    `json:"enabled,omitempty"`
	Priority          *int                     `json:"priority,omitempty"`
	Conditions        *database.RuleConditions `json:"conditions,omitempty"`
	RequiredSkills    []string                 `json:"required_skills,omitempty"`
	TargetTechnicians []uint                   `json:"target_technicians,omitempty"`
	Strategy          *string                  `json:"assignment_strategy,omitempty" validate:"omitempty,oneof=round_robin least_loaded skill_match load_balance"`
}

// ========== Pagination Types ==========

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// ========== Mapper Output Types ==========

// IncidentListItem is a compact representation of an incident for list
// views. It omits the full description to reduce response size.
type IncidentListItem struct {
	ID               uint                    `json:"id"`
	UUID             string                  `json:"uuid"`
	CompanyID        uint                    `json:"company_id"`
	Signature        string                  `json:"signature"`
	AssetID          string                  `json:"asset_id"`
	AssetName        string                  `json:"asset_name"`
	Category         string                  `json:"category"`
	Severity         database.AlertSeverity  `json:"severity"`
	Status           database.IncidentStatus `json:"status"`
	AlertCount       int                     `json:"alert_count"`
	ToolSources      []string                `json:"tool_sources"`
	PriorityScore    float64                 `json:"priority_score"`
	AssignedTo       *uint                   `json:"assigned_to,omitempty"`
	Escalated        bool                    `json:"escalated"`
	ResponseDeadline *time.Time              `json:"response_deadline,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
	ResolvedAt       *time.Time              `json:"resolved_at,omitempty"`
}
