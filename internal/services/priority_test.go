package services

import (
	"testing"
	"time"

	"github.com/korrelix/korrelix/internal/database"
)

func TestScorePriority_SeverityBase(t *testing.T) {
	now := time.Now()
	tests := []struct {
		severity database.AlertSeverity
		expected float64
	}{
		{database.SeverityLow, 12},      // 10 + 1 alert * 2
		{database.SeverityMedium, 32},   // 30 + 2
		{database.SeverityHigh, 62},     // 60 + 2
		{database.SeverityCritical, 92}, // 90 + 2
	}

	for _, tt := range tests {
		incident := &database.Incident{
			Severity:   tt.severity,
			AlertCount: 1,
			CreatedAt:  now,
		}
		score := ScorePriority(incident, nil, now)
		if score != tt.expected {
			t.Errorf("severity %s: score = %v, want %v", tt.severity, score, tt.expected)
		}
	}
}

func TestScorePriority_CriticalAssetBonus(t *testing.T) {
	now := time.Now()
	incident := &database.Incident{
		Severity:   database.SeverityHigh,
		AssetID:    "srv-db-01",
		AlertCount: 1,
		CreatedAt:  now,
	}

	without := ScorePriority(incident, database.StringList{"srv-other"}, now)
	with := ScorePriority(incident, database.StringList{"srv-db-01"}, now)

	if with-without != 20 {
		t.Errorf("critical asset bonus = %v, want 20", with-without)
	}
}

func TestScorePriority_DuplicateFactorCapped(t *testing.T) {
	now := time.Now()
	incident := &database.Incident{
		Severity:   database.SeverityMedium,
		AlertCount: 50,
		CreatedAt:  now,
	}

	// 30 base + capped 20 duplicate factor
	score := ScorePriority(incident, nil, now)
	if score != 50 {
		t.Errorf("score = %v, want 50 (duplicate factor capped at 20)", score)
	}
}

func TestScorePriority_MultiToolBonus(t *testing.T) {
	now := time.Now()
	single := &database.Incident{
		Severity:    database.SeverityHigh,
		AlertCount:  1,
		ToolSources: database.StringList{"Datadog"},
		CreatedAt:   now,
	}
	multi := &database.Incident{
		Severity:    database.SeverityHigh,
		AlertCount:  1,
		ToolSources: database.StringList{"Datadog", "Zabbix"},
		CreatedAt:   now,
	}

	diff := ScorePriority(multi, nil, now) - ScorePriority(single, nil, now)
	if diff != 10 {
		t.Errorf("multi-tool bonus = %v, want 10", diff)
	}
}

func TestScorePriority_AgeDecayCapped(t *testing.T) {
	now := time.Now()
	fresh := &database.Incident{
		Severity:   database.SeverityCritical,
		AlertCount: 1,
		CreatedAt:  now,
	}
	old := &database.Incident{
		Severity:   database.SeverityCritical,
		AlertCount: 1,
		CreatedAt:  now.Add(-100 * time.Hour),
	}

	diff := ScorePriority(fresh, nil, now) - ScorePriority(old, nil, now)
	if diff != 10 {
		t.Errorf("age decay = %v, want capped at 10", diff)
	}
}

func TestScorePriority_PartialAgeDecay(t *testing.T) {
	now := time.Now()
	incident := &database.Incident{
		Severity:   database.SeverityHigh,
		AlertCount: 1,
		CreatedAt:  now.Add(-90 * time.Minute), // 1.5 hours
	}

	// 60 + 2 - 1.5 = 60.5
	score := ScorePriority(incident, nil, now)
	if score != 60.5 {
		t.Errorf("score = %v, want 60.5", score)
	}
}

func TestScorePriority_RoundsToTwoDecimals(t *testing.T) {
	now := time.Now()
	incident := &database.Incident{
		Severity:   database.SeverityHigh,
		AlertCount: 1,
		CreatedAt:  now.Add(-20 * time.Minute), // 0.333... hours
	}

	score := ScorePriority(incident, nil, now)
	if score != 61.67 {
		t.Errorf("score = %v, want 61.67", score)
	}
}

func TestScorePriority_FullFormula(t *testing.T) {
	now := time.Now()
	incident := &database.Incident{
		Severity:    database.SeverityHigh,
		AssetID:     "srv-1",
		AlertCount:  3,
		ToolSources: database.StringList{"Datadog", "Zabbix"},
		CreatedAt:   now,
	}

	// 60 severity + 20 critical asset + 6 duplicates + 10 multi-tool
	score := ScorePriority(incident, database.StringList{"srv-1"}, now)
	if score != 96 {
		t.Errorf("score = %v, want 96", score)
	}
}

func TestClassifyCategory(t *testing.T) {
	tests := []struct {
		signature string
		assetName string
		expected  string
	}{
		{"disk_full", "srv-1", "storage"},
		{"unauthorized_login", "vpn-gw", "security"},
		{"high_latency", "core-switch", "network"},
		{"replication_lag", "pg-primary", "database"},
		{"s3_bucket_errors", "backup-job", "storage"}, // "backup" hits storage before cloud
		{"lambda_timeout", "billing", "cloud"},
		{"error_rate_spike", "checkout", "application"},
		{"cpu_high", "worker-3", "server"},
		{"something_odd", "mystery-box", "server"}, // default
	}

	for _, tt := range tests {
		got := ClassifyCategory(tt.signature, tt.assetName)
		if got != tt.expected {
			t.Errorf("ClassifyCategory(%q, %q) = %q, want %q", tt.signature, tt.assetName, got, tt.expected)
		}
	}
}

func TestClassifyCategory_SecurityWinsOrder(t *testing.T) {
	// A signature matching both security and network keywords picks
	// security because it is checked first.
	got := ClassifyCategory("firewall_latency", "edge")
	if got != "security" {
		t.Errorf("ClassifyCategory = %q, want %q", got, "security")
	}
}
