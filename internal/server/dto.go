package server

import (
	"encoding/json"

	"dmscripts/internal/domain"
)

type RunResponse struct {
	ID            string         `json:"id"`
	Job           string         `json:"job"`
	FrameworkSlug string         `json:"framework_slug,omitempty"`
	UpdatedBy     string         `json:"updated_by,omitempty"`
	DryRun        bool           `json:"dry_run"`
	StartedAt     string         `json:"started_at" format:"date-time"`
	FinishedAt    *string        `json:"finished_at,omitempty" format:"date-time"`
	Summary       map[string]int `json:"summary,omitempty"`
	Outcomes      map[string]int `json:"outcomes,omitempty"`
}

type DiscretionaryResponse struct {
	Framework string           `json:"framework"`
	Run       RunResponse      `json:"run"`
	Suppliers []domain.Outcome `json:"suppliers"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	RunID      string         `json:"run_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type MeResponse struct {
	Subject        string  `json:"subject"`
	TokenExpiresAt *string `json:"token_expires_at,omitempty" format:"date-time"`
}

func runResponse(r domain.Run, outcomes map[string]int) RunResponse {
	return RunResponse{
		ID:            r.ID,
		Job:           r.Job,
		FrameworkSlug: r.FrameworkSlug,
		UpdatedBy:     r.UpdatedBy,
		DryRun:        r.DryRun,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Summary:       r.Summary,
		Outcomes:      outcomes,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		RunID:      e.RunID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
