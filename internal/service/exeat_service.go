package service

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
	"exeat/internal/repository"
	"exeat/internal/workflow"
)

// SubmitExeatRequest is the student's leave application.
type SubmitExeatRequest struct {
	Purpose            string    `json:"purpose"`
	DepartureDate      time.Time `json:"departure_date"`
	ReturnDate         time.Time `json:"return_date"`
	ContactInfo        string    `json:"contact_info"`
	ConsentDocumentRef string    `json:"consent_document_ref,omitempty"`
}

// ActionRequest is a staff verdict.
type ActionRequest struct {
	Action  model.Action `json:"action"`
	Comment string       `json:"comment"`
}

// IntakeRules bound what a student may submit.
type IntakeRules struct {
	InstitutionCode        string
	PurposeMinLength       int
	PurposeMaxLength       int
	ContactMinLength       int
	ContactMaxLength       int
	RequireConsentDocument bool
}

// ExeatService is the request intake, work-queue and workflow facade used by
// the HTTP layer.
type ExeatService interface {
	Submit(ctx context.Context, studentID string, req SubmitExeatRequest) (*model.ExeatRequest, error)
	ApplyAction(ctx context.Context, actorID, exeatID string, req ActionRequest) (*model.ExeatRequest, error)
	ListMine(ctx context.Context, studentID string) ([]*model.ExeatRequest, error)
	Queue(ctx context.Context, actorID string) ([]*model.ExeatRequest, error)
	Get(ctx context.Context, callerID, exeatID string) (*model.ExeatRequest, error)
}

type exeatService struct {
	exeats    repository.ExeatRepository
	sequences repository.SequenceRepository
	txManager repository.TransactionManager
	resolver  RoleResolver
	engine    *workflow.Engine
	consents  ConsentChecker
	publisher EventPublisher
	rules     IntakeRules
	now       func() time.Time
}

// ExeatServiceDeps groups the collaborators of the exeat service.
type ExeatServiceDeps struct {
	Exeats    repository.ExeatRepository
	Sequences repository.SequenceRepository
	TxManager repository.TransactionManager
	Resolver  RoleResolver
	Engine    *workflow.Engine
	Consents  ConsentChecker
	Publisher EventPublisher
	Clock     func() time.Time
}

// NewExeatService returns a new instance of ExeatService
func NewExeatService(deps ExeatServiceDeps, rules IntakeRules) ExeatService {
	s := &exeatService{
		exeats:    deps.Exeats,
		sequences: deps.Sequences,
		txManager: deps.TxManager,
		resolver:  deps.Resolver,
		engine:    deps.Engine,
		consents:  deps.Consents,
		publisher: deps.Publisher,
		rules:     rules,
		now:       deps.Clock,
	}
	if s.txManager == nil {
		s.txManager = repository.NewDirectRunner()
	}
	if s.publisher == nil {
		s.publisher = NoopPublisher()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *exeatService) Submit(ctx context.Context, studentID string, req SubmitExeatRequest) (*model.ExeatRequest, error) {
	student, err := s.resolver.Resolve(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Role != model.RoleStudent {
		return nil, apperrors.Forbidden("only students can submit exeat requests")
	}

	req.Purpose = strings.TrimSpace(req.Purpose)
	req.ContactInfo = strings.TrimSpace(req.ContactInfo)
	req.ConsentDocumentRef = strings.TrimSpace(req.ConsentDocumentRef)
	if err := s.validate(ctx, req); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	var created *model.ExeatRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seq, err := s.sequences.NextSequence(txCtx, model.SequenceKey(s.rules.InstitutionCode, now.Year()))
		if err != nil {
			return apperrors.DependencyFailure(err)
		}
		id, err := model.FormatExeatID(s.rules.InstitutionCode, now.Year(), seq)
		if err != nil {
			return apperrors.DependencyFailure(err)
		}

		r := &model.ExeatRequest{
			ID:                 id,
			StudentID:          student.ID,
			StudentName:        student.FullName,
			MatricNumber:       student.Matric(),
			Purpose:            req.Purpose,
			DepartureDate:      req.DepartureDate.UTC(),
			ReturnDate:         req.ReturnDate.UTC(),
			ContactInfo:        req.ContactInfo,
			ConsentDocumentRef: req.ConsentDocumentRef,
			Status:             model.StatusPending,
			CurrentStage:       model.StagePorter,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		r.AppendEntry(model.TrailEntry{
			ActorID:   student.ID,
			ActorName: student.FullName,
			ActorRole: model.RoleStudent,
			Comment:   model.InitialComment,
			Action:    model.ActionSubmitted,
			Timestamp: now,
		})
		if err := r.CheckInvariants(); err != nil {
			return err
		}

		if err := s.exeats.Create(txCtx, r); err != nil {
			return apperrors.DependencyFailure(err)
		}
		created = r
		return nil
	})
	if err != nil {
		if _, ok := apperrors.IsAppError(err); ok {
			return nil, err
		}
		return nil, apperrors.DependencyFailure(err)
	}

	logger.Info("exeat submitted",
		zap.String("exeat_id", created.ID),
		zap.String("student_id", created.StudentID),
	)
	s.publisher.Publish(model.NewExeatEvent(created))
	return created, nil
}

func (s *exeatService) validate(ctx context.Context, req SubmitExeatRequest) error {
	var fields []apperrors.FieldError

	fields = append(fields, checkLength("purpose", req.Purpose, s.rules.PurposeMinLength, s.rules.PurposeMaxLength)...)
	fields = append(fields, checkLength("contact_info", req.ContactInfo, s.rules.ContactMinLength, s.rules.ContactMaxLength)...)

	if req.DepartureDate.IsZero() {
		fields = append(fields, apperrors.FieldError{Field: "departure_date", Code: apperrors.CodeFieldRequired, Message: "departure date is required"})
	}
	switch {
	case req.ReturnDate.IsZero():
		fields = append(fields, apperrors.FieldError{Field: "return_date", Code: apperrors.CodeFieldRequired, Message: "return date is required"})
	case !req.DepartureDate.IsZero() && !req.ReturnDate.After(req.DepartureDate):
		fields = append(fields, apperrors.FieldError{Field: "return_date", Code: apperrors.CodeFieldInvalid, Message: "return date must be after departure date"})
	}

	switch {
	case req.ConsentDocumentRef == "" && s.rules.RequireConsentDocument:
		fields = append(fields, apperrors.FieldError{Field: "consent_document_ref", Code: apperrors.CodeFieldRequired, Message: "a parental consent document is required"})
	case req.ConsentDocumentRef != "" && s.consents != nil:
		ok, err := s.consents.Exists(ctx, req.ConsentDocumentRef)
		if err != nil {
			return apperrors.DependencyFailure(err)
		}
		if !ok {
			fields = append(fields, apperrors.FieldError{Field: "consent_document_ref", Code: apperrors.CodeFieldInvalid, Message: "consent document was not found"})
		}
	}

	if len(fields) > 0 {
		return apperrors.Validation(fields...)
	}
	return nil
}

func checkLength(field, value string, minLen, maxLen int) []apperrors.FieldError {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0:
		return []apperrors.FieldError{{Field: field, Code: apperrors.CodeFieldRequired, Message: field + " is required"}}
	case n < minLen:
		return []apperrors.FieldError{{Field: field, Code: apperrors.CodeFieldTooShort, Message: field + " is too short"}}
	case maxLen > 0 && n > maxLen:
		return []apperrors.FieldError{{Field: field, Code: apperrors.CodeFieldTooLong, Message: field + " is too long"}}
	}
	return nil
}

func (s *exeatService) ApplyAction(ctx context.Context, actorID, exeatID string, req ActionRequest) (*model.ExeatRequest, error) {
	user, err := s.resolver.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	// The engine's stage gate rejects students and wrong-stage staff alike.
	updated, err := s.engine.ApplyAction(ctx, exeatID, user.Actor(), req.Action, req.Comment)
	if err != nil {
		return nil, err
	}

	logger.Info("exeat transition applied",
		zap.String("exeat_id", updated.ID),
		zap.String("actor_id", user.ID),
		zap.String("actor_role", string(user.Role)),
		zap.String("action", string(req.Action)),
		zap.String("status", string(updated.Status)),
		zap.String("stage", string(updated.CurrentStage)),
	)
	s.publisher.Publish(model.NewExeatEvent(updated))
	return updated, nil
}

func (s *exeatService) ListMine(ctx context.Context, studentID string) ([]*model.ExeatRequest, error) {
	user, err := s.resolver.Resolve(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if user.Role != model.RoleStudent {
		return nil, apperrors.Forbidden("only students have their own requests")
	}

	list, err := s.exeats.ListByStudent(ctx, user.ID)
	if err != nil {
		return nil, apperrors.DependencyFailure(err)
	}
	return list, nil
}

func (s *exeatService) Queue(ctx context.Context, actorID string) ([]*model.ExeatRequest, error) {
	user, err := s.resolver.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	stage, ok := user.Role.Stage()
	if !ok {
		return nil, apperrors.Forbidden("only staff have a work queue")
	}

	list, err := s.exeats.ListForStaff(ctx, stage, user.ID)
	if err != nil {
		return nil, apperrors.DependencyFailure(err)
	}
	return list, nil
}

// Get returns a request to its owner or to any staff member. Other students
// get the same not-found error as for an unknown id.
func (s *exeatService) Get(ctx context.Context, callerID, exeatID string) (*model.ExeatRequest, error) {
	user, err := s.resolver.Resolve(ctx, callerID)
	if err != nil {
		return nil, err
	}

	r, err := s.exeats.FindByID(ctx, exeatID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ExeatNotFound(exeatID, err)
		}
		return nil, apperrors.DependencyFailure(err)
	}
	if !user.Role.IsStaff() && r.StudentID != user.ID {
		return nil, apperrors.ExeatNotFound(exeatID, nil)
	}
	return r, nil
}
