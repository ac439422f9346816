package handlers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/api"
	"github.com/korrelix/korrelix/internal/database"
	"github.com/korrelix/korrelix/internal/services"
	"github.com/korrelix/korrelix/internal/utils"
)

// WebhookHandler ingests raw alerts pushed by monitoring tools
type WebhookHandler struct {
	db          *gorm.DB
	correlation *services.CorrelationService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(db *gorm.DB, correlation *services.CorrelationService) *WebhookHandler {
	return &WebhookHandler{
		db:          db,
		correlation: correlation,
	}
}

// HandleWebhook processes incoming alert deliveries.
// Route: /webhook/alerts/{company_uuid}
//
// Deliveries are idempotent on delivery_id: a redelivered alert is
// counted as a duplicate and not stored twice. Alerts without a
// delivery_id get a generated one.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/webhook/alerts/")
	companyUUID := strings.TrimSuffix(path, "/")
	if err := utils.ValidateUUID(companyUUID); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid company UUID")
		return
	}

	var company database.Company
	if err := h.db.Where("uuid = ?", companyUUID).First(&company).Error; err != nil {
		log.Printf("Webhook for unknown company %s", utils.EscapeForLogging(companyUUID, 64))
		api.RespondError(w, http.StatusNotFound, "Company not found")
		return
	}

	var req api.IngestAlertsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	accepted := 0
	duplicates := 0
	now := time.Now()
	for _, in := range req.Alerts {
		deliveryID := in.DeliveryID
		if deliveryID == "" {
			deliveryID = uuid.New().String()
		} else {
			var count int64
			if err := h.db.Model(&database.Alert{}).Where("delivery_id = ?", deliveryID).Count(&count).Error; err != nil {
				api.RespondError(w, http.StatusInternalServerError, "Failed to store alerts")
				return
			}
			if count > 0 {
				duplicates++
				continue
			}
		}

		timestamp := now
		if in.Timestamp != nil {
			timestamp = *in.Timestamp
		}

		alert := database.Alert{
			UUID:       uuid.New().String(),
			CompanyID:  company.ID,
			AssetID:    in.AssetID,
			AssetName:  in.AssetName,
			Signature:  in.Signature,
			Severity:   database.AlertSeverity(in.Severity),
			ToolSource: in.ToolSource,
			Status:     database.AlertStatusActive,
			DeliveryID: deliveryID,
			Timestamp:  timestamp,
		}
		if err := h.db.Create(&alert).Error; err != nil {
			log.Printf("Failed to store alert %s for company %d: %v",
				utils.EscapeForLogging(in.Signature, 128), company.ID, err)
			api.RespondError(w, http.StatusInternalServerError, "Failed to store alerts")
			return
		}
		accepted++
	}

	log.Printf("Webhook: accepted %d alerts (%d duplicates) for company %s", accepted, duplicates, company.Name)

	// Correlate right away when the tenant has auto-correlation on; the
	// periodic sweep covers it otherwise.
	if accepted > 0 && h.correlation != nil {
		config, err := database.GetOrCreateCorrelationConfig(h.db, company.ID)
		if err != nil {
			log.Printf("Failed to load correlation config for company %d: %v", company.ID, err)
		} else if config.AutoCorrelate {
			companyID := company.ID
			go func() {
				if _, err := h.correlation.Correlate(companyID); err != nil {
					log.Printf("Webhook-triggered correlation for company %d failed: %v", companyID, err)
				}
			}()
		}
	}

	api.RespondJSON(w, http.StatusOK, api.IngestAlertsResponse{
		Accepted:   accepted,
		Duplicates: duplicates,
	})
}
