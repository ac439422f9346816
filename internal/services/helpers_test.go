package services

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/korrelix/korrelix/internal/database"
)

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

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
}

type notifierCall struct {
	UserID  uint
	Kind    string
	Payload map[string]interface{}
}

func (n *recordingNotifier) Notify(userID uint, kind string, payload map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifierCall{UserID: userID, Kind: kind, Payload: payload})
	return nil
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, c := range n.calls {
		if c.Kind == kind {
			count++
		}
	}
	return count
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, e := range p.events {
		if e == event {
			count++
		}
	}
	return count
}

// newTestStack wires the full service graph against one test database.
func newTestStack(db *gorm.DB) (*CorrelationService, *SLAService, *AssignmentService, *IncidentService, *OverflowQueue, *recordingNotifier, *recordingPublisher) {
	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}
	audit := database.NewAuditRecorder(db)
	locks := NewKeyedMutex()

	sla := NewSLAService(db, locks, notifier, publisher, audit)
	correlation := NewCorrelationService(db, locks, sla, notifier, publisher)
	overflow := NewOverflowQueue(db, notifier, publisher)
	assigner := NewAssignmentService(db, locks, overflow, NewOnCallSchedule(db), notifier, publisher, audit)
	incidents := NewIncidentService(db, locks, assigner, overflow, publisher, audit)
	return correlation, sla, assigner, incidents, overflow, notifier, publisher
}

func createTestCompany(t *testing.T, db *gorm.DB, name string, criticalAssets ...string) *database.Company {
	t.Helper()
	company := &database.Company{
		UUID:           name + "-uuid",
		Name:           name,
		CriticalAssets: database.StringList(criticalAssets),
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}
	return company
}

func createTestAlert(t *testing.T, db *gorm.DB, companyID uint, signature, assetID string, severity database.AlertSeverity, tool string, timestamp time.Time) *database.Alert {
	t.Helper()
	alert := &database.Alert{
		UUID:       strconv.FormatUint(uint64(companyID), 10) + "-" + signature + "-" + assetID + "-" + tool + "-" + timestamp.Format("150405.000000000"),
		CompanyID:  companyID,
		AssetID:    assetID,
		AssetName:  assetID,
		Signature:  signature,
		Severity:   severity,
		ToolSource: tool,
		Status:     database.AlertStatusActive,
		DeliveryID: strconv.FormatUint(uint64(companyID), 10) + "-" + signature + "-" + assetID + "-" + tool + "-" + timestamp.Format("150405.000000000"),
		Timestamp:  timestamp,
	}
	if err := db.Create(alert).Error; err != nil {
		t.Fatalf("failed to create test alert: %v", err)
	}
	return alert
}

func createTestTechnician(t *testing.T, db *gorm.DB, companyID uint, email string, skills []string, current, max int) *database.TechnicianSkills {
	t.Helper()
	user := &database.User{
		CompanyID: &companyID,
		Name:      email,
		Email:     email,
		Role:      database.RoleTechnician,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	tech := &database.TechnicianSkills{
		UserID:          user.ID,
		CompanyID:       companyID,
		Skills:          database.StringList(skills),
		WorkloadCurrent: current,
		WorkloadMax:     max,
		Availability:    database.AvailabilityAvailable,
	}
	if err := db.Create(tech).Error; err != nil {
		t.Fatalf("failed to create test technician: %v", err)
	}
	return tech
}
