package workflow

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/pkg/logger"
)

// DefaultCommentMaxLength bounds a staff comment when no option overrides it.
const DefaultCommentMaxLength = 300

// DefaultMaxConflictRetries is how many times a lost race is retried.
const DefaultMaxConflictRetries = 3

// Store is the part of the request store the engine needs. Update loads the
// request, runs mutate on a private copy and commits the result atomically.
// If mutate fails nothing is written and its error is returned unchanged.
// A lost race is reported with an error wrapping apperrors.ErrConflict.
type Store interface {
	Update(ctx context.Context, id string, mutate func(r *model.ExeatRequest) error) (*model.ExeatRequest, error)
}

// Engine applies staff verdicts to requests.
type Engine struct {
	store      Store
	now        func() time.Time
	commentMax int
	maxRetries int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCommentMaxLength sets the comment limit in characters.
func WithCommentMaxLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.commentMax = n
		}
	}
}

// WithMaxConflictRetries sets how often a lost race is retried before
// ConcurrencyConflict is returned. Zero disables retries.
func WithMaxConflictRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// NewEngine creates an Engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		now:        time.Now,
		commentMax: DefaultCommentMaxLength,
		maxRetries: DefaultMaxConflictRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CommentMaxLength returns the configured comment limit.
func (e *Engine) CommentMaxLength() int {
	return e.commentMax
}

// ApplyAction records actor's verdict on request id and advances it.
//
// Errors: ErrValidation for a bad comment or action, ErrNotFound for an
// unknown id, ErrInvalidTransition when the actor may not act on the request
// in its current stage, ErrConflict when a concurrent commit kept winning,
// ErrDependency when the store failed.
func (e *Engine) ApplyAction(ctx context.Context, id string, actor model.Actor, action model.Action, comment string) (*model.ExeatRequest, error) {
	comment = strings.TrimSpace(comment)
	if err := e.validate(action, comment); err != nil {
		return nil, err
	}

	mutate := func(r *model.ExeatRequest) error {
		return e.transition(r, actor, action, comment)
	}

	for attempt := 0; ; attempt++ {
		updated, err := e.store.Update(ctx, id, mutate)
		if err == nil {
			return updated, nil
		}

		if _, ok := apperrors.IsAppError(err); ok {
			return nil, err
		}

		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			return nil, apperrors.ExeatNotFound(id, err)
		case errors.Is(err, apperrors.ErrConflict):
			if attempt >= e.maxRetries || ctx.Err() != nil {
				return nil, apperrors.ConcurrencyConflict(id, err)
			}
			logger.Warn("exeat update lost a race, retrying",
				zap.String("exeat_id", id),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		case errors.Is(err, model.ErrInvariant):
			return nil, err
		default:
			return nil, apperrors.DependencyFailure(err)
		}
	}
}

func (e *Engine) validate(action model.Action, comment string) error {
	var fields []apperrors.FieldError
	if comment == "" {
		fields = append(fields, apperrors.FieldError{
			Field:   "comment",
			Code:    apperrors.CodeFieldRequired,
			Message: "a comment is required",
		})
	} else if utf8.RuneCountInString(comment) > e.commentMax {
		fields = append(fields, apperrors.FieldError{
			Field:   "comment",
			Code:    apperrors.CodeFieldTooLong,
			Message: "comment exceeds the maximum length",
		})
	}
	if !action.IsVerdict() {
		fields = append(fields, apperrors.FieldError{
			Field:   "action",
			Code:    apperrors.CodeFieldInvalid,
			Message: "action must be Approved, Declined or Rejected",
		})
	}
	if len(fields) > 0 {
		return apperrors.Validation(fields...)
	}
	return nil
}

// transition runs inside the store's atomic unit. It must not have side
// effects beyond r because it may run more than once.
func (e *Engine) transition(r *model.ExeatRequest, actor model.Actor, action model.Action, comment string) error {
	if r.CurrentStage.Terminal() {
		return apperrors.InvalidTransition("exeat %s is already %s", r.ID, r.Status)
	}
	if !r.AwaitingRole(actor.Role) {
		return apperrors.InvalidTransition("exeat %s is awaiting %s, not %s", r.ID, r.CurrentStage, actor.Role)
	}
	if actor.ID == r.StudentID {
		return apperrors.InvalidTransition("the requesting student cannot act on exeat %s", r.ID)
	}

	next, ok := Next(r.CurrentStage, action)
	if !ok {
		return apperrors.InvalidTransition("%s is not allowed at stage %s", action, r.CurrentStage)
	}

	// Millisecond precision survives every store.
	now := e.now().UTC().Truncate(time.Millisecond)
	if now.Before(r.UpdatedAt) {
		now = r.UpdatedAt
	}

	r.AppendEntry(model.TrailEntry{
		ActorID:   actor.ID,
		ActorName: actor.Name,
		ActorRole: actor.Role,
		Comment:   comment,
		Action:    action,
		Timestamp: now,
	})
	r.Status = next.Status
	r.CurrentStage = next.Stage

	return r.CheckInvariants()
}
