package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Role of an authenticated identity.
type Role string

const (
	RoleStudent Role = "student"
	RolePorter  Role = "porter"
	RoleHOD     Role = "hod"
	RoleDSA     Role = "dsa"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RolePorter, RoleHOD, RoleDSA:
		return true
	default:
		return false
	}
}

// IsStaff reports whether r is one of the approval-chain roles.
func (r Role) IsStaff() bool {
	_, ok := r.Stage()
	return ok
}

// Stage returns the workflow stage that r is responsible for.
func (r Role) Stage() (Stage, bool) {
	switch r {
	case RolePorter:
		return StagePorter, true
	case RoleHOD:
		return StageHOD, true
	case RoleDSA:
		return StageDSA, true
	case RoleStudent:
		return "", false
	default:
		return "", false
	}
}

// Stage is the role that must act next on a request, or Completed.
type Stage string

const (
	StagePorter    Stage = "porter"
	StageHOD       Stage = "hod"
	StageDSA       Stage = "dsa"
	StageCompleted Stage = "Completed"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StagePorter, StageHOD, StageDSA, StageCompleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further action is possible.
func (s Stage) Terminal() bool {
	return s == StageCompleted
}

// Status of a request.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusHold     Status = "Hold"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusHold, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Final reports whether s is a verdict status.
func (s Status) Final() bool {
	return s == StatusApproved || s == StatusRejected
}

// Action recorded on a trail entry.
type Action string

const (
	ActionSubmitted Action = "Submitted"
	ActionApproved  Action = "Approved"
	ActionDeclined  Action = "Declined"
	ActionRejected  Action = "Rejected"
	ActionCommented Action = "Commented"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionSubmitted, ActionApproved, ActionDeclined, ActionRejected, ActionCommented:
		return true
	default:
		return false
	}
}

// IsVerdict reports whether a staff member may apply a through the workflow.
func (a Action) IsVerdict() bool {
	return a == ActionApproved || a == ActionDeclined || a == ActionRejected
}

// Actor is an authenticated identity resolved to its profile.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// InitialComment is the comment seeded on every new request.
const InitialComment = "Initial request submitted."

// ExeatRequest is one leave application.
type ExeatRequest struct {
	ID                 string                      `gorm:"type:varchar(32);primaryKey" json:"id" bson:"_id"`
	StudentID          string                      `gorm:"type:varchar(64);not null;index" json:"student_id" bson:"student_id"`
	StudentName        string                      `gorm:"type:varchar(255);not null" json:"student_name" bson:"student_name"`
	MatricNumber       string                      `gorm:"type:varchar(32);not null" json:"matric_number" bson:"matric_number"`
	Purpose            string                      `gorm:"type:text;not null" json:"purpose" bson:"purpose"`
	DepartureDate      time.Time                   `gorm:"not null" json:"departure_date" bson:"departure_date"`
	ReturnDate         time.Time                   `gorm:"not null" json:"return_date" bson:"return_date"`
	ContactInfo        string                      `gorm:"type:varchar(255);not null" json:"contact_info" bson:"contact_info"`
	ConsentDocumentRef string                      `gorm:"type:text" json:"consent_document_ref,omitempty" bson:"consent_document_ref,omitempty"`
	Status             Status                      `gorm:"type:varchar(16);not null;index:idx_exeat_queue,priority:2" json:"status" bson:"status"`
	CurrentStage       Stage                       `gorm:"type:varchar(16);not null;index:idx_exeat_queue,priority:1" json:"current_stage" bson:"current_stage"`
	ApprovalTrail      []TrailEntry                `gorm:"foreignKey:RequestID;references:ID" json:"approval_trail" bson:"approval_trail"`
	ActorIDs           datatypes.JSONSlice[string] `gorm:"column:actor_ids_in_trail;type:jsonb;not null" json:"actor_ids_in_trail" bson:"actor_ids_in_trail"`
	Version            int64                       `gorm:"not null;default:1" json:"-" bson:"version"`
	CreatedAt          time.Time                   `gorm:"autoCreateTime:false;not null" json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time                   `gorm:"autoUpdateTime:false;not null;index" json:"updated_at" bson:"updated_at"`
}

// TableName pins the table name.
func (ExeatRequest) TableName() string {
	return "exeat_requests"
}

// TrailEntry is one immutable event in a request's history.
type TrailEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"-" bson:"-"`
	RequestID string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_trail_request_seq,priority:1" json:"-" bson:"-"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_trail_request_seq,priority:2" json:"-" bson:"seq"`
	ActorID   string    `gorm:"type:varchar(64);not null;index" json:"actor_id" bson:"actor_id"`
	ActorName string    `gorm:"type:varchar(255);not null" json:"actor_name" bson:"actor_name"`
	ActorRole Role      `gorm:"type:varchar(16);not null" json:"actor_role" bson:"actor_role"`
	Comment   string    `gorm:"type:text;not null" json:"comment" bson:"comment"`
	Action    Action    `gorm:"type:varchar(16);not null" json:"action" bson:"action"`
	Timestamp time.Time `gorm:"not null" json:"timestamp" bson:"timestamp"`
}

// TableName pins the table name.
func (TrailEntry) TableName() string {
	return "exeat_trail_entries"
}

// AppendEntry is the only way to grow the trail. It stamps the sequence
// number, refreshes UpdatedAt and recomputes ActorIDs from the trail.
func (r *ExeatRequest) AppendEntry(e TrailEntry) {
	e.RequestID = r.ID
	e.Seq = len(r.ApprovalTrail)
	r.ApprovalTrail = append(r.ApprovalTrail, e)
	if e.Timestamp.After(r.UpdatedAt) {
		r.UpdatedAt = e.Timestamp
	}
	r.ActorIDs = DeriveActorIDs(r.ApprovalTrail)
}

// DeriveActorIDs returns the distinct actor ids of trail in first-seen order.
func DeriveActorIDs(trail []TrailEntry) []string {
	seen := make(map[string]struct{}, len(trail))
	ids := make([]string, 0, len(trail))
	for _, e := range trail {
		if _, ok := seen[e.ActorID]; ok {
			continue
		}
		seen[e.ActorID] = struct{}{}
		ids = append(ids, e.ActorID)
	}
	return ids
}

// HasActor reports whether id has acted on the request.
func (r *ExeatRequest) HasActor(id string) bool {
	for _, a := range r.ActorIDs {
		if a == id {
			return true
		}
	}
	return false
}

// AwaitingRole reports whether the request is waiting for role to act.
func (r *ExeatRequest) AwaitingRole(role Role) bool {
	stage, ok := role.Stage()
	return ok && r.CurrentStage == stage
}

// LastEntry returns the most recent trail entry.
func (r *ExeatRequest) LastEntry() (TrailEntry, bool) {
	if len(r.ApprovalTrail) == 0 {
		return TrailEntry{}, false
	}
	return r.ApprovalTrail[len(r.ApprovalTrail)-1], true
}

// Clone returns a deep copy so stores never share slices with callers.
func (r *ExeatRequest) Clone() *ExeatRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.ApprovalTrail = append([]TrailEntry(nil), r.ApprovalTrail...)
	c.ActorIDs = append(datatypes.JSONSlice[string](nil), r.ActorIDs...)
	return &c
}

// ErrInvariant is wrapped by every CheckInvariants failure.
var ErrInvariant = errors.New("exeat invariant violated")

// CheckInvariants verifies the record-level invariants of a request.
func (r *ExeatRequest) CheckInvariants() error {
	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s: %s", ErrInvariant, r.ID, fmt.Sprintf(format, args...))
	}

	if !r.Status.Valid() {
		return fail("unknown status %q", r.Status)
	}
	if !r.CurrentStage.Valid() {
		return fail("unknown stage %q", r.CurrentStage)
	}
	if r.Status.Final() != r.CurrentStage.Terminal() {
		return fail("status %s with stage %s", r.Status, r.CurrentStage)
	}

	if len(r.ApprovalTrail) == 0 {
		return fail("empty trail")
	}
	first := r.ApprovalTrail[0]
	if first.Action != ActionSubmitted || first.ActorRole != RoleStudent || first.ActorID != r.StudentID {
		return fail("first entry must be Submitted by the owning student")
	}
	for i, e := range r.ApprovalTrail[1:] {
		if e.ActorID == r.StudentID {
			return fail("owning student acted at entry %d", i+1)
		}
		if e.Action == ActionSubmitted {
			return fail("duplicate Submitted entry at %d", i+1)
		}
	}

	if r.Status == StatusApproved {
		last, _ := r.LastEntry()
		if last.Action != ActionApproved || last.ActorRole != RoleDSA {
			return fail("approved without a final dsa approval")
		}
	}

	derived := DeriveActorIDs(r.ApprovalTrail)
	if len(derived) != len(r.ActorIDs) {
		return fail("actor ids drifted from trail")
	}
	for i := range derived {
		if derived[i] != r.ActorIDs[i] {
			return fail("actor ids drifted from trail")
		}
	}
	return nil
}
