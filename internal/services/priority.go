package services

import (
	"math"
	"strings"
	"time"

	"github.com/korrelix/korrelix/internal/database"
)

// Priority scoring weights. The score is deterministic and explainable:
// severity + critical-asset bonus + duplicate factor + multi-tool bonus
// − age decay, rounded to 2 decimal places.
const (
	criticalAssetBonus = 20.0
	duplicateFactorCap = 20.0
	multiToolBonus     = 10.0
	ageDecayCapHours   = 10.0
)

var severityScores = map[database.AlertSeverity]float64{
	database.SeverityLow:      10,
	database.SeverityMedium:   30,
	database.SeverityHigh:     60,
	database.SeverityCritical: 90,
}

// ScorePriority computes the incident's priority score. Pure function:
// no I/O, deterministic for a given now.
func ScorePriority(incident *database.Incident, criticalAssets database.StringList, now time.Time) float64 {
	score := severityScores[incident.Severity]

	if criticalAssets.Contains(incident.AssetID) {
		score += criticalAssetBonus
	}

	score += math.Min(float64(incident.AlertCount)*2, duplicateFactorCap)

	if len(incident.ToolSources) >= 2 {
		score += multiToolBonus
	}

	// Linear age decay, capped so old incidents never sink more than
	// ageDecayCapHours points below their base.
	ageHours := now.Sub(incident.CreatedAt).Hours()
	if ageHours > 0 {
		score -= math.Min(ageHours, ageDecayCapHours)
	}

	return math.Round(score*100) / 100
}

// categoryKeywords maps category names to signature/asset keywords.
// Checked in a fixed order; first category with a hit wins.
var categoryOrder = []string{"security", "network", "database", "storage", "cloud", "application", "server"}

var categoryKeywords = map[string][]string{
	"security":    {"security", "unauthorized", "login", "auth", "malware", "breach", "firewall", "intrusion"},
	"network":     {"network", "interface", "bgp", "vpn", "switch", "router", "ping", "latency", "packet", "dns"},
	"database":    {"database", "db", "sql", "postgres", "mysql", "mongo", "replica", "replication", "deadlock"},
	"storage":     {"disk", "storage", "volume", "filesystem", "inode", "raid", "backup"},
	"cloud":       {"cloud", "aws", "azure", "gcp", "s3", "ec2", "lambda"},
	"application": {"application", "app", "api", "http", "5xx", "exception", "error_rate", "queue"},
	"server":      {"cpu", "memory", "server", "host", "load", "swap", "reboot", "service"},
}

// ClassifyCategory infers an incident category from the alert signature
// and asset name. Defaults to "server" when nothing matches.
func ClassifyCategory(signature, assetName string) string {
	haystack := strings.ToLower(signature + " " + assetName)
	for _, category := range categoryOrder {
		for _, keyword := range categoryKeywords[category] {
			if strings.Contains(haystack, keyword) {
				return category
			}
		}
	}
	return "server"
}
