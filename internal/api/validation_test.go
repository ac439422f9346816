package api

import (
	"strings"
	"testing"
)

func TestValidate_ValidRule(t *testing.T) {
	req := CreateAssignmentRuleRequest{
		Name:     "critical first",
		Priority: 100,
		Strategy: "least_loaded",
	}
	if errs := Validate(req); errs != nil {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	errs := Validate(CreateAssignmentRuleRequest{Strategy: "round_robin"})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if errs["name"] != "is required" {
		t.Errorf("name error = %q, want %q", errs["name"], "is required")
	}
}

func TestValidate_ReportsWireFieldName(t *testing.T) {
	errs := Validate(CreateAssignmentRuleRequest{Name: "x", Strategy: "coin_flip"})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	// The Go field is Strategy; the error must use the JSON name.
	want := "must be one of: round_robin least_loaded skill_match load_balance"
	if errs["assignment_strategy"] != want {
		t.Errorf("assignment_strategy error = %q, want %q", errs["assignment_strategy"], want)
	}
}

func TestValidate_MaxLength(t *testing.T) {
	errs := Validate(CreateAssignmentRuleRequest{Name: strings.Repeat("a", 256)})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if errs["name"] != "must be at most 255 characters" {
		t.Errorf("name error = %q, want %q", errs["name"], "must be at most 255 characters")
	}
}

func TestValidate_EmptyAlertBatch(t *testing.T) {
	errs := Validate(IngestAlertsRequest{})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if errs["alerts"] != "is required" {
		t.Errorf("alerts error = %q, want %q", errs["alerts"], "is required")
	}
}

func TestValidate_DivesIntoAlerts(t *testing.T) {
	req := IngestAlertsRequest{Alerts: []IngestAlert{
		{AssetID: "srv-1", Signature: "cpu_high", Severity: "urgent"},
	}}
	errs := Validate(req)
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	want := "must be one of: low medium high critical"
	if errs["severity"] != want {
		t.Errorf("severity error = %q, want %q", errs["severity"], want)
	}
}

func TestValidate_MissingAlertFields(t *testing.T) {
	req := IngestAlertsRequest{Alerts: []IngestAlert{
		{Signature: "disk_full", Severity: "high"},
	}}
	errs := Validate(req)
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if errs["asset_id"] != "is required" {
		t.Errorf("asset_id error = %q, want %q", errs["asset_id"], "is required")
	}
}

func TestValidate_LoginRequest(t *testing.T) {
	errs := Validate(LoginRequest{Username: "admin"})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if errs["password"] != "is required" {
		t.Errorf("password error = %q, want %q", errs["password"], "is required")
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Name", "name"},
		{"AssetName", "asset_name"},
		{"asset_id", "asset_id"},
		{"simple", "simple"},
		{"", ""},
	}

	for _, tt := range tests {
		got := toSnakeCase(tt.input)
		if got != tt.expected {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
