package model

import "time"

// EventExeatUpdated is pushed to dashboards after a request is created or transitioned.
const EventExeatUpdated = "exeat.updated"

// ExeatEvent is the realtime notification payload. It carries no trail
// contents so subscribers refetch through the authorised endpoints.
type ExeatEvent struct {
	Type         string    `json:"type"`
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	Status       Status    `json:"status"`
	CurrentStage Stage     `json:"current_stage"`
	LastAction   Action    `json:"last_action"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewExeatEvent builds the update event for r.
func NewExeatEvent(r *ExeatRequest) ExeatEvent {
	ev := ExeatEvent{
		Type:         EventExeatUpdated,
		ID:           r.ID,
		StudentID:    r.StudentID,
		Status:       r.Status,
		CurrentStage: r.CurrentStage,
		UpdatedAt:    r.UpdatedAt,
	}
	if last, ok := r.LastEntry(); ok {
		ev.LastAction = last.Action
	}
	return ev
}
