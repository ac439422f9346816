package handlers

import (
	"net/http"
	"strconv"

	"github.com/korrelix/korrelix/internal/api"
	"github.com/korrelix/korrelix/internal/database"
	"github.com/korrelix/korrelix/internal/middleware"
	"github.com/korrelix/korrelix/internal/services"
)

// handleListIncidents handles GET /api/incidents.
// Optional filters: company_id, status (repeatable), open=true.
// Pagination via page/per_page.
func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&database.Incident{})

	var companyID uint
	if v := r.URL.Query().Get("company_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid company_id")
			return
		}
		companyID = uint(id)
		query = query.Where("company_id = ?", companyID)
	}

	if statuses := r.URL.Query()["status"]; len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	} else if r.URL.Query().Get("open") == "true" {
		query = query.Where("status IN ?", database.OpenIncidentStatuses())
	}

	params := api.ParsePagination(r)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get incidents")
		return
	}

	var incidents []database.Incident
	err := query.Order("created_at DESC").
		Offset(params.Offset()).Limit(params.PerPage).
		Find(&incidents).Error
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get incidents")
		return
	}

	api.RespondJSON(w, http.StatusOK, api.PaginatedResponse{
		Data:       api.IncidentsToListItems(incidents),
		Pagination: params.Meta(total),
	})
}

// handleGetIncident handles GET /api/incidents/{uuid}
func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.incidentFromPath(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

// handleGetIncidentAlerts handles GET /api/incidents/{uuid}/alerts -
// lists the raw alerts folded into this incident.
func (h *APIHandler) handleGetIncidentAlerts(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.incidentFromPath(w, r)
	if !ok {
		return
	}

	var alerts []database.Alert
	err := h.db.Where("incident_id = ?", incident.ID).
		Order("timestamp ASC").Find(&alerts).Error
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get alerts")
		return
	}
	api.RespondJSON(w, http.StatusOK, alerts)
}

// handleGetIncidentSLA handles GET /api/incidents/{uuid}/sla
func (h *APIHandler) handleGetIncidentSLA(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.incidentFromPath(w, r)
	if !ok {
		return
	}

	status, err := h.sla.CheckStatus(incident.UUID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to check SLA status")
		return
	}
	api.RespondJSON(w, http.StatusOK, status)
}

// handleAssignIncident handles POST /api/incidents/{uuid}/assign.
// With a technician_id in the body the incident is assigned directly;
// otherwise the rule engine picks a technician.
func (h *APIHandler) handleAssignIncident(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.incidentFromPath(w, r)
	if !ok {
		return
	}

	var req api.AssignIncidentRequest
	if r.ContentLength > 0 {
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var result *services.AssignmentResult
	var err error
	if req.TechnicianID != nil {
		result, err = h.assigner.AssignManually(incident.UUID, *req.TechnicianID)
	} else {
		result, err = h.assigner.AssignIncident(incident.UUID)
	}
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Assignment failed")
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}

// handleResolveIncident handles POST /api/incidents/{uuid}/resolve
func (h *APIHandler) handleResolveIncident(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.incidentFromPath(w, r)
	if !ok {
		return
	}

	var req api.ResolveIncidentRequest
	if r.ContentLength > 0 {
		if err := api.DecodeJSON(r, &req); err != nil {
			api.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = middleware.GetUserFromContext(r.Context())
	}

	resolved, err := h.incidents.Resolve(incident.UUID, resolvedBy)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to resolve incident")
		return
	}
	api.RespondJSON(w, http.StatusOK, resolved)
}

// incidentFromPath loads the incident named by the {uuid} path segment.
// Writes the error response itself and returns false when missing.
func (h *APIHandler) incidentFromPath(w http.ResponseWriter, r *http.Request) (*database.Incident, bool) {
	uuid := r.PathValue("uuid")
	if uuid == "" {
		api.RespondError(w, http.StatusBadRequest, "Missing incident UUID")
		return nil, false
	}

	incident, err := h.incidents.GetByUUID(uuid)
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "Incident not found")
		return nil, false
	}
	return incident, true
}
