package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository/memory"
	"exeat/internal/workflow"
)

var clock = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ExeatEvent
}

func (p *recordingPublisher) Publish(ev model.ExeatEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) all() []model.ExeatEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.ExeatEvent(nil), p.events...)
}

type fakeConsents struct {
	known map[string]bool
	err   error
}

func (f fakeConsents) Exists(_ context.Context, ref string) (bool, error) {
	return f.known[ref], f.err
}

type fixture struct {
	svc       ExeatService
	store     *memory.Store
	users     *memory.Users
	publisher *recordingPublisher

	student, other, porter, hod, dsa *model.User
}

func newFixture(t *testing.T, mutate ...func(*ExeatServiceDeps, *IntakeRules)) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.New(),
		users:     memory.NewUsers(),
		publisher: &recordingPublisher{},
	}
	ctx := context.Background()
	mk := func(id, name string, role model.Role, matric string) *model.User {
		u := &model.User{ID: id, Email: id + "@mtu.edu.ng", FullName: name, Password: "x", Role: role}
		if matric != "" {
			u.MatricNumber = &matric
		}
		require.NoError(t, f.users.Create(ctx, u))
		return u
	}
	f.student = mk("stu-1", "Ada Obi", model.RoleStudent, "MTU/22/0001")
	f.other = mk("stu-2", "Bola Ade", model.RoleStudent, "MTU/22/0002")
	f.porter = mk("porter-1", "Gate Porter", model.RolePorter, "")
	f.hod = mk("hod-1", "Dr. Head", model.RoleHOD, "")
	f.dsa = mk("dsa-1", "Student Affairs", model.RoleDSA, "")

	deps := ExeatServiceDeps{
		Exeats:    f.store,
		Sequences: f.store,
		Resolver:  NewRoleResolver(f.users),
		Engine:    workflow.NewEngine(f.store, workflow.WithClock(func() time.Time { return clock.Add(time.Hour) })),
		Publisher: f.publisher,
		Clock:     func() time.Time { return clock },
	}
	rules := IntakeRules{
		InstitutionCode:  "MTU",
		PurposeMinLength: 5,
		PurposeMaxLength: 200,
		ContactMinLength: 10,
		ContactMaxLength: 150,
	}
	for _, m := range mutate {
		m(&deps, &rules)
	}
	f.svc = NewExeatService(deps, rules)
	return f
}

func validSubmission() SubmitExeatRequest {
	return SubmitExeatRequest{
		Purpose:       "Sister's wedding in Lagos",
		DepartureDate: clock.Add(48 * time.Hour),
		ReturnDate:    clock.Add(96 * time.Hour),
		ContactInfo:   "08030000000, 12 Allen Avenue, Ikeja",
	}
}

func requireCode(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok, "expected *AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code)
	return appErr
}

func TestSubmit_CreatesPendingRequest(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Submit(context.Background(), f.student.ID, validSubmission())
	require.NoError(t, err)

	assert.Equal(t, "EX-MTU-2025-00001", r.ID)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.Equal(t, model.StagePorter, r.CurrentStage)
	assert.Equal(t, "Ada Obi", r.StudentName)
	assert.Equal(t, "MTU/22/0001", r.MatricNumber)
	assert.Equal(t, clock, r.CreatedAt)
	assert.Equal(t, clock, r.UpdatedAt)
	require.Len(t, r.ApprovalTrail, 1)
	assert.Equal(t, model.ActionSubmitted, r.ApprovalTrail[0].Action)
	assert.Equal(t, model.InitialComment, r.ApprovalTrail[0].Comment)
	assert.Equal(t, model.RoleStudent, r.ApprovalTrail[0].ActorRole)
	assert.Equal(t, []string{f.student.ID}, []string(r.ActorIDs))

	stored, err := f.store.FindByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, stored.ID)

	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, r.ID, events[0].ID)
	assert.Equal(t, model.ActionSubmitted, events[0].LastAction)
}

func TestSubmit_SequentialIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, f.student.ID, validSubmission())
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, f.other.ID, validSubmission())
	require.NoError(t, err)

	assert.Equal(t, "EX-MTU-2025-00001", first.ID)
	assert.Equal(t, "EX-MTU-2025-00002", second.ID)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SubmitExeatRequest)
		field  string
		code   string
	}{
		{"purpose too short", func(r *SubmitExeatRequest) { r.Purpose = "trip" }, "purpose", apperrors.CodeFieldTooShort},
		{"purpose blank", func(r *SubmitExeatRequest) { r.Purpose = "    " }, "purpose", apperrors.CodeFieldRequired},
		{"purpose too long", func(r *SubmitExeatRequest) { r.Purpose = strings.Repeat("a", 201) }, "purpose", apperrors.CodeFieldTooLong},
		{"contact too short", func(r *SubmitExeatRequest) { r.ContactInfo = "0803" }, "contact_info", apperrors.CodeFieldTooShort},
		{"missing departure", func(r *SubmitExeatRequest) { r.DepartureDate = time.Time{} }, "departure_date", apperrors.CodeFieldRequired},
		{"missing return", func(r *SubmitExeatRequest) { r.ReturnDate = time.Time{} }, "return_date", apperrors.CodeFieldRequired},
		{"return equals departure", func(r *SubmitExeatRequest) { r.ReturnDate = r.DepartureDate }, "return_date", apperrors.CodeFieldInvalid},
		{"return before departure", func(r *SubmitExeatRequest) { r.ReturnDate = r.DepartureDate.Add(-time.Hour) }, "return_date", apperrors.CodeFieldInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validSubmission()
			tt.mutate(&req)

			_, err := f.svc.Submit(context.Background(), f.student.ID, req)
			appErr := requireCode(t, err, apperrors.CodeValidationFailed)
			require.ErrorIs(t, err, apperrors.ErrValidation)

			var found bool
			for _, fe := range appErr.FieldErrors {
				if fe.Field == tt.field && fe.Code == tt.code {
					found = true
				}
			}
			assert.True(t, found, "missing %s/%s in %+v", tt.field, tt.code, appErr.FieldErrors)

			// Validation failures must not consume an id.
			n, err := f.store.NextSequence(context.Background(), model.SequenceKey("MTU", 2025))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			assert.Empty(t, f.publisher.all())
		})
	}
}

func TestSubmit_ConsentDocument(t *testing.T) {
	withConsent := func(c ConsentChecker) func(*ExeatServiceDeps, *IntakeRules) {
		return func(d *ExeatServiceDeps, r *IntakeRules) {
			d.Consents = c
			r.RequireConsentDocument = true
		}
	}
	checker := fakeConsents{known: map[string]bool{"consents/abc.pdf": true}}

	t.Run("required", func(t *testing.T) {
		f := newFixture(t, withConsent(checker))
		_, err := f.svc.Submit(context.Background(), f.student.ID, validSubmission())
		appErr := requireCode(t, err, apperrors.CodeValidationFailed)
		assert.Equal(t, "consent_document_ref", appErr.FieldErrors[0].Field)
		assert.Equal(t, apperrors.CodeFieldRequired, appErr.FieldErrors[0].Code)
	})

	t.Run("unknown reference", func(t *testing.T) {
		f := newFixture(t, withConsent(checker))
		req := validSubmission()
		req.ConsentDocumentRef = "consents/missing.pdf"
		_, err := f.svc.Submit(context.Background(), f.student.ID, req)
		appErr := requireCode(t, err, apperrors.CodeValidationFailed)
		assert.Equal(t, apperrors.CodeFieldInvalid, appErr.FieldErrors[0].Code)
	})

	t.Run("known reference", func(t *testing.T) {
		f := newFixture(t, withConsent(checker))
		req := validSubmission()
		req.ConsentDocumentRef = "consents/abc.pdf"
		r, err := f.svc.Submit(context.Background(), f.student.ID, req)
		require.NoError(t, err)
		assert.Equal(t, "consents/abc.pdf", r.ConsentDocumentRef)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t, withConsent(fakeConsents{err: errors.New("disk gone")}))
		req := validSubmission()
		req.ConsentDocumentRef = "consents/abc.pdf"
		_, err := f.svc.Submit(context.Background(), f.student.ID, req)
		requireCode(t, err, apperrors.CodeDependencyFailure)
		assert.ErrorIs(t, err, apperrors.ErrDependency)
	})
}

func TestSubmit_OnlyStudents(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), f.porter.ID, validSubmission())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.svc.Submit(context.Background(), "ghost", validSubmission())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSubmit_ConcurrentUniqueIDs(t *testing.T) {
	f := newFixture(t)
	const n = 1000

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ids  = make([]string, 0, n)
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.svc.Submit(context.Background(), f.student.ID, validSubmission())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids = append(ids, r.ID)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, ids, n)

	seqs := make([]int, 0, n)
	for _, id := range ids {
		inst, year, seq, ok := model.ParseExeatID(id)
		require.True(t, ok, id)
		assert.Equal(t, "MTU", inst)
		assert.Equal(t, 2025, year)
		seqs = append(seqs, int(seq))
	}
	sort.Ints(seqs)
	for i, seq := range seqs {
		require.Equal(t, i+1, seq)
	}

	mine, err := f.svc.ListMine(context.Background(), f.student.ID)
	require.NoError(t, err)
	assert.Len(t, mine, n)
}

func TestApplyAction_FullChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, f.student.ID, validSubmission())
	require.NoError(t, err)

	r, err = f.svc.ApplyAction(ctx, f.porter.ID, r.ID, ActionRequest{Action: model.ActionApproved, Comment: "Checked out at gate"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusHold, r.Status)
	assert.Equal(t, model.StageHOD, r.CurrentStage)

	r, err = f.svc.ApplyAction(ctx, f.hod.ID, r.ID, ActionRequest{Action: model.ActionApproved, Comment: "Fine by department"})
	require.NoError(t, err)
	assert.Equal(t, model.StageDSA, r.CurrentStage)

	r, err = f.svc.ApplyAction(ctx, f.dsa.ID, r.ID, ActionRequest{Action: model.ActionApproved, Comment: "Approved"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, r.Status)
	assert.Equal(t, model.StageCompleted, r.CurrentStage)
	assert.Len(t, r.ApprovalTrail, 4)
	assert.Equal(t, []string{f.student.ID, f.porter.ID, f.hod.ID, f.dsa.ID}, []string(r.ActorIDs))
	require.NoError(t, r.CheckInvariants())

	// Terminal: further verdicts are rejected without mutation.
	_, err = f.svc.ApplyAction(ctx, f.dsa.ID, r.ID, ActionRequest{Action: model.ActionRejected, Comment: "Changed my mind"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	stored, err := f.store.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ApprovalTrail, 4)

	assert.Len(t, f.publisher.all(), 4)
}

func TestApplyAction_Gates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, f.student.ID, validSubmission())
	require.NoError(t, err)

	// Students fail the stage gate like any other role the request is not awaiting.
	_, err = f.svc.ApplyAction(ctx, f.student.ID, r.ID, ActionRequest{Action: model.ActionApproved, Comment: "self approve"})
	requireCode(t, err, apperrors.CodeInvalidTransition)
	_, err = f.svc.ApplyAction(ctx, f.other.ID, r.ID, ActionRequest{Action: model.ActionRejected, Comment: "not mine"})
	requireCode(t, err, apperrors.CodeInvalidTransition)

	_, err = f.svc.ApplyAction(ctx, f.hod.ID, r.ID, ActionRequest{Action: model.ActionApproved, Comment: "skipping porter"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = f.svc.ApplyAction(ctx, f.porter.ID, "EX-MTU-2025-09999", ActionRequest{Action: model.ActionApproved, Comment: "ok"})
	requireCode(t, err, apperrors.CodeExeatNotFound)

	_, err = f.svc.ApplyAction(ctx, f.porter.ID, r.ID, ActionRequest{Action: model.ActionCommented, Comment: "just a note"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	unchanged, err := f.svc.Get(ctx, f.porter.ID, r.ID)
	require.NoError(t, err)
	assert.Len(t, unchanged.ApprovalTrail, 1)
	assert.Equal(t, model.StagePorter, unchanged.CurrentStage)
	assert.Len(t, f.publisher.all(), 1)
}

func TestQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Submit(ctx, f.student.ID, validSubmission())
	require.NoError(t, err)
	b, err := f.svc.Submit(ctx, f.other.ID, validSubmission())
	require.NoError(t, err)
	_, err = f.svc.ApplyAction(ctx, f.porter.ID, a.ID, ActionRequest{Action: model.ActionApproved, Comment: "ok"})
	require.NoError(t, err)

	porterQueue, err := f.svc.Queue(ctx, f.porter.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, idsOf(porterQueue))

	hodQueue, err := f.svc.Queue(ctx, f.hod.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, idsOf(hodQueue))

	dsaQueue, err := f.svc.Queue(ctx, f.dsa.ID)
	require.NoError(t, err)
	assert.Empty(t, dsaQueue)

	_, err = f.svc.Queue(ctx, f.student.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.student.ID, validSubmission())
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.other.ID, validSubmission())
	require.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, f.student.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, f.student.ID, mine[0].StudentID)

	_, err = f.svc.ListMine(ctx, f.porter.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestGet_Participants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, f.student.ID, validSubmission())
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, f.student.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	got, err = f.svc.Get(ctx, f.dsa.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = f.svc.Get(ctx, f.other.ID, r.ID)
	requireCode(t, err, apperrors.CodeExeatNotFound)

	_, err = f.svc.Get(ctx, f.porter.ID, "EX-MTU-2025-00042")
	requireCode(t, err, apperrors.CodeExeatNotFound)
}

func idsOf(list []*model.ExeatRequest) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.ID)
	}
	return out
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, f.student.ID, validSubmission())
	require.NoError(t, err)

	verifier := NewVerificationService(f.store)

	got, err := verifier.Verify(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Len(t, got.ApprovalTrail, 1)

	got, err = verifier.Verify(ctx, " ex-mtu-2025-00001 ")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	for _, id := range []string{"EX-MTU-2025-00002", "EX-MTU-2025", "EX-MTU-2025-0000", "", "%", fmt.Sprintf("%s-extra", r.ID)} {
		_, err := verifier.Verify(ctx, id)
		requireCode(t, err, apperrors.CodeExeatNotFound)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	}
}
