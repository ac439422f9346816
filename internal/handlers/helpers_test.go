package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
	"github.com/korrelix/korrelix/internal/services"
)

const testCompanyUUID = "11111111-2222-3333-4444-555555555555"

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// newTestMux wires the full handler stack against one test database,
// without the auth middleware.
func newTestMux(t *testing.T) (*gorm.DB, *http.ServeMux) {
	t.Helper()
	db := setupTestDB(t)

	locks := services.NewKeyedMutex()
	audit := database.NewAuditRecorder(db)
	sla := services.NewSLAService(db, locks, nil, nil, audit)
	correlation := services.NewCorrelationService(db, locks, sla, nil, nil)
	overflow := services.NewOverflowQueue(db, nil, nil)
	assigner := services.NewAssignmentService(db, locks, overflow, services.NewOnCallSchedule(db), nil, nil, audit)
	incidents := services.NewIncidentService(db, locks, assigner, overflow, nil, audit)

	webhook := NewWebhookHandler(db, correlation)
	httpHandler := NewHTTPHandler(webhook)
	apiHandler := NewAPIHandler(db, correlation, sla, assigner, incidents, overflow)

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	return db, mux
}

func createCompany(t *testing.T, db *gorm.DB, uuid, name string) *database.Company {
	t.Helper()
	company := &database.Company{UUID: uuid, Name: name}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create company: %v", err)
	}
	return company
}

// disableAutoCorrelate keeps webhook tests synchronous.
func disableAutoCorrelate(t *testing.T, db *gorm.DB, companyID uint) {
	t.Helper()
	config, err := database.GetOrCreateCorrelationConfig(db, companyID)
	if err != nil {
		t.Fatalf("failed to load correlation config: %v", err)
	}
	config.AutoCorrelate = false
	if err := database.UpdateCorrelationConfig(db, config); err != nil {
		t.Fatalf("failed to update correlation config: %v", err)
	}
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func doRequest(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}
