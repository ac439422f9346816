package api

import "github.com/korrelix/korrelix/internal/database"

// IncidentToListItem converts a database Incident to a compact list
// representation. It omits the full description to reduce response size.
func IncidentToListItem(i database.Incident) IncidentListItem {
	return IncidentListItem{
		ID:               i.ID,
		UUID:             i.UUID,
		CompanyID:        i.CompanyID,
		Signature:        i.Signature,
		AssetID:          i.AssetID,
		AssetName:        i.AssetName,
		Category:         i.Category,
		Severity:         i.Severity,
		Status:           i.Status,
		AlertCount:       i.AlertCount,
		ToolSources:      i.ToolSources,
		PriorityScore:    i.PriorityScore,
		AssignedTo:       i.AssignedTo,
		Escalated:        i.Escalated,
		ResponseDeadline: i.ResponseDeadline,
		CreatedAt:        i.CreatedAt,
		UpdatedAt:        i.UpdatedAt,
		ResolvedAt:       i.ResolvedAt,
	}
}

// IncidentsToListItems converts a slice of database Incidents to list items.
func IncidentsToListItems(incidents []database.Incident) []IncidentListItem {
	items := make([]IncidentListItem, len(incidents))
	for i, inc := range incidents {
		items[i] = IncidentToListItem(inc)
	}
	return items
}
