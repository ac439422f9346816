package handlers

import (
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/api"
	"github.com/korrelix/korrelix/internal/database"
	"github.com/korrelix/korrelix/internal/services"
)

// APIHandler handles API endpoints for the dashboard
type APIHandler struct {
	db          *gorm.DB
	correlation *services.CorrelationService
	sla         *services.SLAService
	assigner    *services.AssignmentService
	incidents   *services.IncidentService
	overflow    *services.OverflowQueue
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(db *gorm.DB, correlation *services.CorrelationService, sla *services.SLAService, assigner *services.AssignmentService, incidents *services.IncidentService, overflow *services.OverflowQueue) *APIHandler {
	return &APIHandler{
		db:          db,
		correlation: correlation,
		sla:         sla,
		assigner:    assigner,
		incidents:   incidents,
		overflow:    overflow,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Companies
	mux.HandleFunc("GET /api/companies", h.handleListCompanies)

	// Incidents
	mux.HandleFunc("GET /api/incidents", h.handleListIncidents)
	mux.HandleFunc("GET /api/incidents/{uuid}", h.handleGetIncident)
	mux.HandleFunc("GET /api/incidents/{uuid}/alerts", h.handleGetIncidentAlerts)
	mux.HandleFunc("GET /api/incidents/{uuid}/sla", h.handleGetIncidentSLA)
	mux.HandleFunc("POST /api/incidents/{uuid}/assign", h.handleAssignIncident)
	mux.HandleFunc("POST /api/incidents/{uuid}/resolve", h.handleResolveIncident)

	// Per-company correlation
	mux.HandleFunc("POST /api/companies/{id}/correlate", h.handleCorrelate)
	mux.HandleFunc("GET /api/companies/{id}/correlation-config", h.handleGetCorrelationConfig)
	mux.HandleFunc("PUT /api/companies/{id}/correlation-config", h.handleUpdateCorrelationConfig)

	// Per-company SLA
	mux.HandleFunc("GET /api/companies/{id}/sla-config", h.handleGetSLAConfig)
	mux.HandleFunc("PUT /api/companies/{id}/sla-config", h.handleUpdateSLAConfig)
	mux.HandleFunc("GET /api/companies/{id}/sla-compliance", h.handleSLACompliance)

	// Per-company assignment
	mux.HandleFunc("GET /api/companies/{id}/assignment-rules", h.handleListAssignmentRules)
	mux.HandleFunc("POST /api/companies/{id}/assignment-rules", h.handleCreateAssignmentRule)
	mux.HandleFunc("PUT /api/companies/{id}/assignment-rules/{ruleID}", h.handleUpdateAssignmentRule)
	mux.HandleFunc("DELETE /api/companies/{id}/assignment-rules/{ruleID}", h.handleDeleteAssignmentRule)
	mux.HandleFunc("GET /api/companies/{id}/technicians", h.handleListTechnicians)

	// Overflow queue
	mux.HandleFunc("GET /api/companies/{id}/queue", h.handleGetQueue)
	mux.HandleFunc("POST /api/companies/{id}/queue/process", h.handleProcessQueue)
}

// companyIDFromPath parses the {id} path segment and verifies the
// company exists. Writes the error response itself and returns 0 when
// the lookup fails.
func (h *APIHandler) companyIDFromPath(w http.ResponseWriter, r *http.Request) uint {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		api.RespondError(w, http.StatusBadRequest, "Invalid company ID")
		return 0
	}

	var company database.Company
	if err := h.db.First(&company, uint(id)).Error; err != nil {
		api.RespondError(w, http.StatusNotFound, "Company not found")
		return 0
	}
	return uint(id)
}

// handleListCompanies handles GET /api/companies
func (h *APIHandler) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	var companies []database.Company
	if err := h.db.Order("id ASC").Find(&companies).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get companies")
		return
	}
	api.RespondJSON(w, http.StatusOK, companies)
}

// handleCorrelate handles POST /api/companies/{id}/correlate - runs one
// correlation pass for the company and reports what it did.
func (h *APIHandler) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	result, err := h.correlation.Correlate(companyID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Correlation failed")
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}

// handleGetCorrelationConfig handles GET /api/companies/{id}/correlation-config
func (h *APIHandler) handleGetCorrelationConfig(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	config, err := database.GetOrCreateCorrelationConfig(h.db, companyID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get correlation config")
		return
	}
	api.RespondJSON(w, http.StatusOK, config)
}

// handleUpdateCorrelationConfig handles PUT /api/companies/{id}/correlation-config
func (h *APIHandler) handleUpdateCorrelationConfig(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	var req api.UpdateCorrelationConfigRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	config, err := database.GetOrCreateCorrelationConfig(h.db, companyID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get correlation config")
		return
	}

	if req.TimeWindowMinutes != nil {
		config.TimeWindowMinutes = *req.TimeWindowMinutes
	}
	if req.AggregationKey != nil {
		config.AggregationKey = *req.AggregationKey
	}
	if req.AutoCorrelate != nil {
		config.AutoCorrelate = *req.AutoCorrelate
	}
	if req.MinAlertsForIncident != nil {
		config.MinAlertsForIncident = *req.MinAlertsForIncident
	}

	if err := database.UpdateCorrelationConfig(h.db, config); err != nil {
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	api.RespondJSON(w, http.StatusOK, config)
}

// handleGetSLAConfig handles GET /api/companies/{id}/sla-config
func (h *APIHandler) handleGetSLAConfig(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	config, err := database.GetOrCreateSLAConfig(h.db, companyID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get SLA config")
		return
	}
	api.RespondJSON(w, http.StatusOK, config)
}

// handleUpdateSLAConfig handles PUT /api/companies/{id}/sla-config.
// Changes apply to incidents created afterwards; existing incidents keep
// the deadlines frozen at their creation.
func (h *APIHandler) handleUpdateSLAConfig(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	var req api.UpdateSLAConfigRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	config, err := database.GetOrCreateSLAConfig(h.db, companyID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get SLA config")
		return
	}

	if req.Enabled != nil {
		config.Enabled = *req.Enabled
	}
	if req.BusinessHoursOnly != nil {
		config.BusinessHoursOnly = *req.BusinessHoursOnly
	}
	if req.ResponseTimeMinutes != nil {
		merged := make(database.MinutesBySeverity, len(config.ResponseTimeMinutes))
		for sev, m := range config.ResponseTimeMinutes {
			merged[sev] = m
		}
		for sev, m := range req.ResponseTimeMinutes {
			merged[database.AlertSeverity(sev)] = m
		}
		config.ResponseTimeMinutes = merged
	}
	if req.ResolutionTimeMinutes != nil {
		merged := make(database.MinutesBySeverity, len(config.ResolutionTimeMinutes))
		for sev, m := range config.ResolutionTimeMinutes {
			merged[sev] = m
		}
		for sev, m := range req.ResolutionTimeMinutes {
			merged[database.AlertSeverity(sev)] = m
		}
		config.ResolutionTimeMinutes = merged
	}
	if req.EscalationEnabled != nil {
		config.EscalationEnabled = *req.EscalationEnabled
	}
	if req.EscalationBeforeBreachMinutes != nil {
		config.EscalationBeforeBreachMinutes = *req.EscalationBeforeBreachMinutes
	}
	if req.EscalationChain != nil {
		config.EscalationChain = req.EscalationChain
	}
	if req.RenotifyOnBreach != nil {
		config.RenotifyOnBreach = *req.RenotifyOnBreach
	}

	if err := database.UpdateSLAConfig(h.db, config); err != nil {
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	api.RespondJSON(w, http.StatusOK, config)
}

// handleSLACompliance handles GET /api/companies/{id}/sla-compliance?days=30
func (h *APIHandler) handleSLACompliance(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			api.RespondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	report, err := h.sla.Compliance(companyID, days)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to build compliance report")
		return
	}
	api.RespondJSON(w, http.StatusOK, report)
}

// handleListAssignmentRules handles GET /api/companies/{id}/assignment-rules
func (h *APIHandler) handleListAssignmentRules(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	var rules []database.AssignmentRule
	err := h.db.Where("company_id = ?", companyID).
		Order("priority DESC, id ASC").Find(&rules).Error
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get assignment rules")
		return
	}
	api.RespondJSON(w, http.StatusOK, rules)
}

// handleCreateAssignmentRule handles POST /api/companies/{id}/assignment-rules
func (h *APIHandler) handleCreateAssignmentRule(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	var req api.CreateAssignmentRuleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	rule := database.AssignmentRule{
		CompanyID:         companyID,
		Name:              req.Name,
		Enabled:           true,
		Priority:          req.Priority,
		Conditions:        req.Conditions,
		RequiredSkills:    req.RequiredSkills,
		TargetTechnicians: req.TargetTechnicians,
		Strategy:          database.StrategyLeastLoaded,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Strategy != "" {
		rule.Strategy = database.AssignmentStrategy(req.Strategy)
	}

	if err := h.db.Create(&rule).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to create assignment rule")
		return
	}
	api.RespondJSON(w, http.StatusCreated, rule)
}

// handleUpdateAssignmentRule handles PUT /api/companies/{id}/assignment-rules/{ruleID}
func (h *APIHandler) handleUpdateAssignmentRule(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	ruleID, err := strconv.ParseUint(r.PathValue("ruleID"), 10, 64)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	var rule database.AssignmentRule
	if err := h.db.Where("id = ? AND company_id = ?", uint(ruleID), companyID).First(&rule).Error; err != nil {
		api.RespondError(w, http.StatusNotFound, "Assignment rule not found")
		return
	}

	var req api.UpdateAssignmentRuleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Conditions != nil {
		rule.Conditions = *req.Conditions
	}
	if req.RequiredSkills != nil {
		rule.RequiredSkills = req.RequiredSkills
	}
	if req.TargetTechnicians != nil {
		rule.TargetTechnicians = req.TargetTechnicians
	}
	if req.Strategy != nil {
		rule.Strategy = database.AssignmentStrategy(*req.Strategy)
	}

	if err := h.db.Save(&rule).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to update assignment rule")
		return
	}
	api.RespondJSON(w, http.StatusOK, rule)
}

// handleDeleteAssignmentRule handles DELETE /api/companies/{id}/assignment-rules/{ruleID}
func (h *APIHandler) handleDeleteAssignmentRule(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	ruleID, err := strconv.ParseUint(r.PathValue("ruleID"), 10, 64)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	result := h.db.Where("id = ? AND company_id = ?", uint(ruleID), companyID).
		Delete(&database.AssignmentRule{})
	if result.Error != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete assignment rule")
		return
	}
	if result.RowsAffected == 0 {
		api.RespondError(w, http.StatusNotFound, "Assignment rule not found")
		return
	}
	api.RespondNoContent(w)
}

// handleListTechnicians handles GET /api/companies/{id}/technicians
func (h *APIHandler) handleListTechnicians(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	var techs []database.TechnicianSkills
	if err := h.db.Where("company_id = ?", companyID).Order("id ASC").Find(&techs).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get technicians")
		return
	}
	api.RespondJSON(w, http.StatusOK, techs)
}

// handleGetQueue handles GET /api/companies/{id}/queue
func (h *APIHandler) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	entries, err := h.overflow.QueuedEntries(companyID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get overflow queue")
		return
	}
	api.RespondJSON(w, http.StatusOK, entries)
}

// handleProcessQueue handles POST /api/companies/{id}/queue/process -
// replays the overflow queue against current capacity.
func (h *APIHandler) handleProcessQueue(w http.ResponseWriter, r *http.Request) {
	companyID := h.companyIDFromPath(w, r)
	if companyID == 0 {
		return
	}

	result, err := h.assigner.ProcessQueue(companyID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to process overflow queue")
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}
