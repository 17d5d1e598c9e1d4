// Package storetest is the contract suite every repository implementation
// runs against.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
	"exeat/internal/repository"
	"exeat/internal/workflow"
)

// Stores is what a backend provides to the suite.
type Stores struct {
	Exeats    repository.ExeatRepository
	Sequences repository.SequenceRepository
}

// Factory returns empty stores for one subtest.
type Factory func(t *testing.T) Stores

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// NewRequest builds a freshly submitted request.
func NewRequest(id, studentID string, createdAt time.Time) *model.ExeatRequest {
	r := &model.ExeatRequest{
		ID:            id,
		StudentID:     studentID,
		StudentName:   "Student " + studentID,
		MatricNumber:  "MTU/22/0001",
		Purpose:       "Family wedding",
		DepartureDate: createdAt.Add(48 * time.Hour),
		ReturnDate:    createdAt.Add(96 * time.Hour),
		ContactInfo:   "08030000000, Lagos",
		Status:        model.StatusPending,
		CurrentStage:  model.StagePorter,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	r.AppendEntry(model.TrailEntry{
		ActorID:   studentID,
		ActorName: r.StudentName,
		ActorRole: model.RoleStudent,
		Comment:   model.InitialComment,
		Action:    model.ActionSubmitted,
		Timestamp: createdAt,
	})
	return r
}

var (
	porter = model.Actor{ID: "porter-1", Name: "Gate Porter", Role: model.RolePorter}
	hod    = model.Actor{ID: "hod-1", Name: "Dr. Head", Role: model.RoleHOD}
	dsa    = model.Actor{ID: "dsa-1", Name: "Student Affairs", Role: model.RoleDSA}
)

// RunExeatRepository runs the Request Store contract.
func RunExeatRepository(t *testing.T, factory Factory) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, factory(t)) })
	t.Run("FindUnknown", func(t *testing.T) { testFindUnknown(t, factory(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, factory(t)) })
	t.Run("UpdateAppends", func(t *testing.T) { testUpdateAppends(t, factory(t)) })
	t.Run("UpdateMutateErrorWritesNothing", func(t *testing.T) { testUpdateMutateError(t, factory(t)) })
	t.Run("UpdateUnknown", func(t *testing.T) { testUpdateUnknown(t, factory(t)) })
	t.Run("FullApprovalChain", func(t *testing.T) { testFullChain(t, factory(t)) })
	t.Run("ConcurrentActionsSingleWinner", func(t *testing.T) { testConcurrentActions(t, factory(t)) })
	t.Run("ListByStudent", func(t *testing.T) { testListByStudent(t, factory(t)) })
	t.Run("ListForStaff", func(t *testing.T) { testListForStaff(t, factory(t)) })
	t.Run("SequenceStartsAtOne", func(t *testing.T) { testSequenceStart(t, factory(t)) })
	t.Run("SequenceConcurrent", func(t *testing.T) { testSequenceConcurrent(t, factory(t)) })
}

func testCreateAndFind(t *testing.T, s Stores) {
	ctx := context.Background()
	req := NewRequest("EX-MTU-2025-00001", "stu-1", base)
	require.NoError(t, s.Exeats.Create(ctx, req))

	got, err := s.Exeats.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, model.StagePorter, got.CurrentStage)
	assert.Equal(t, "Family wedding", got.Purpose)
	assert.True(t, base.Equal(got.CreatedAt))
	require.Len(t, got.ApprovalTrail, 1)
	assert.Equal(t, model.ActionSubmitted, got.ApprovalTrail[0].Action)
	assert.Equal(t, model.InitialComment, got.ApprovalTrail[0].Comment)
	assert.Equal(t, []string{"stu-1"}, []string(got.ActorIDs))
	assert.NoError(t, got.CheckInvariants())
}

func testFindUnknown(t *testing.T, s Stores) {
	_, err := s.Exeats.FindByID(context.Background(), "EX-MTU-2025-99999")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testCreateDuplicate(t *testing.T, s Stores) {
	ctx := context.Background()
	require.NoError(t, s.Exeats.Create(ctx, NewRequest("EX-MTU-2025-00001", "stu-1", base)))
	err := s.Exeats.Create(ctx, NewRequest("EX-MTU-2025-00001", "stu-2", base))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func comment(actor model.Actor, at time.Time) func(*model.ExeatRequest) error {
	return func(r *model.ExeatRequest) error {
		r.AppendEntry(model.TrailEntry{
			ActorID:   actor.ID,
			ActorName: actor.Name,
			ActorRole: actor.Role,
			Comment:   "checked",
			Action:    model.ActionApproved,
			Timestamp: at,
		})
		r.Status, r.CurrentStage = model.StatusHold, model.StageHOD
		return nil
	}
}

func testUpdateAppends(t *testing.T, s Stores) {
	ctx := context.Background()
	req := NewRequest("EX-MTU-2025-00001", "stu-1", base)
	require.NoError(t, s.Exeats.Create(ctx, req))

	at := base.Add(time.Hour)
	updated, err := s.Exeats.Update(ctx, req.ID, comment(porter, at))
	require.NoError(t, err)
	assert.Len(t, updated.ApprovalTrail, 2)

	got, err := s.Exeats.FindByID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.ApprovalTrail, 2)
	assert.Equal(t, porter.ID, got.ApprovalTrail[1].ActorID)
	assert.Equal(t, model.StatusHold, got.Status)
	assert.Equal(t, model.StageHOD, got.CurrentStage)
	assert.True(t, at.Equal(got.UpdatedAt))
	assert.Equal(t, []string{"stu-1", porter.ID}, []string(got.ActorIDs))
}

func testUpdateMutateError(t *testing.T, s Stores) {
	ctx := context.Background()
	req := NewRequest("EX-MTU-2025-00001", "stu-1", base)
	require.NoError(t, s.Exeats.Create(ctx, req))

	boom := errors.New("boom")
	_, err := s.Exeats.Update(ctx, req.ID, func(r *model.ExeatRequest) error {
		r.AppendEntry(model.TrailEntry{ActorID: "x", Action: model.ActionCommented, Timestamp: base})
		r.Status = model.StatusRejected
		return boom
	})
	assert.Same(t, boom, err)

	got, err := s.Exeats.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, got.ApprovalTrail, 1)
	assert.Equal(t, model.StatusPending, got.Status)
}

func testUpdateUnknown(t *testing.T, s Stores) {
	called := false
	_, err := s.Exeats.Update(context.Background(), "EX-MTU-2025-00404", func(*model.ExeatRequest) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, called)
}

func testFullChain(t *testing.T, s Stores) {
	ctx := context.Background()
	req := NewRequest("EX-MTU-2025-00001", "stu-1", base)
	require.NoError(t, s.Exeats.Create(ctx, req))

	clock := base
	engine := workflow.NewEngine(s.Exeats, workflow.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))

	for _, actor := range []model.Actor{porter, hod, dsa} {
		_, err := engine.ApplyAction(ctx, req.ID, actor, model.ActionApproved, "fine by "+actor.Name)
		require.NoError(t, err)
	}

	got, err := s.Exeats.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Equal(t, model.StageCompleted, got.CurrentStage)
	require.Len(t, got.ApprovalTrail, 4)
	for i := 1; i < len(got.ApprovalTrail); i++ {
		assert.False(t, got.ApprovalTrail[i].Timestamp.Before(got.ApprovalTrail[i-1].Timestamp))
	}
	assert.NoError(t, got.CheckInvariants())

	_, err = engine.ApplyAction(ctx, req.ID, dsa, model.ActionRejected, "too late")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	again, err := s.Exeats.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, again.ApprovalTrail, 4)
}

func testConcurrentActions(t *testing.T, s Stores) {
	ctx := context.Background()
	req := NewRequest("EX-MTU-2025-00001", "stu-1", base)
	require.NoError(t, s.Exeats.Create(ctx, req))

	engine := workflow.NewEngine(s.Exeats, workflow.WithMaxConflictRetries(50))

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		invalid   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := model.Actor{ID: fmt.Sprintf("porter-%d", i), Name: "Porter", Role: model.RolePorter}
			_, err := engine.ApplyAction(ctx, req.ID, actor, model.ActionApproved, "gate check")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrInvalidTransition):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, invalid)

	got, err := s.Exeats.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, got.ApprovalTrail, 2)
	assert.Equal(t, model.StageHOD, got.CurrentStage)
}

func testListByStudent(t *testing.T, s Stores) {
	ctx := context.Background()
	require.NoError(t, s.Exeats.Create(ctx, NewRequest("EX-MTU-2025-00001", "stu-1", base)))
	require.NoError(t, s.Exeats.Create(ctx, NewRequest("EX-MTU-2025-00002", "stu-2", base.Add(time.Hour))))
	require.NoError(t, s.Exeats.Create(ctx, NewRequest("EX-MTU-2025-00003", "stu-1", base.Add(2*time.Hour))))

	list, err := s.Exeats.ListByStudent(ctx, "stu-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "EX-MTU-2025-00003", list[0].ID)
	assert.Equal(t, "EX-MTU-2025-00001", list[1].ID)
	assert.Len(t, list[0].ApprovalTrail, 1)

	none, err := s.Exeats.ListByStudent(ctx, "stu-9")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListForStaff(t *testing.T, s Stores) {
	ctx := context.Background()
	engine := workflow.NewEngine(s.Exeats, workflow.WithClock(func() time.Time { return base.Add(5 * time.Hour) }))

	// 1: porter approved it, now at hod.
	// 2 and 3: waiting at porter, 3 updated later.
	// 4: rejected by another porter.
	for i, created := range []time.Duration{0, time.Hour, 2 * time.Hour, 3 * time.Hour} {
		id := fmt.Sprintf("EX-MTU-2025-%05d", i+1)
		require.NoError(t, s.Exeats.Create(ctx, NewRequest(id, fmt.Sprintf("stu-%d", i), base.Add(created))))
	}
	_, err := engine.ApplyAction(ctx, "EX-MTU-2025-00001", porter, model.ActionApproved, "ok")
	require.NoError(t, err)
	other := model.Actor{ID: "porter-2", Name: "Night Porter", Role: model.RolePorter}
	_, err = engine.ApplyAction(ctx, "EX-MTU-2025-00004", other, model.ActionDeclined, "no")
	require.NoError(t, err)

	list, err := s.Exeats.ListForStaff(ctx, model.StagePorter, porter.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"EX-MTU-2025-00003", "EX-MTU-2025-00002", "EX-MTU-2025-00001"}, ids(list))

	hodQueue, err := s.Exeats.ListForStaff(ctx, model.StageHOD, hod.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"EX-MTU-2025-00001"}, ids(hodQueue))

	otherQueue, err := s.Exeats.ListForStaff(ctx, model.StagePorter, other.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"EX-MTU-2025-00003", "EX-MTU-2025-00002", "EX-MTU-2025-00004"}, ids(otherQueue))
}

func ids(list []*model.ExeatRequest) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.ID)
	}
	return out
}

func testSequenceStart(t *testing.T, s Stores) {
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		got, err := s.Sequences.NextSequence(ctx, "exeat:MTU:2025")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := s.Sequences.NextSequence(ctx, "exeat:MTU:2026")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func testSequenceConcurrent(t *testing.T, s Stores) {
	ctx := context.Background()
	const n = 200

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got = make([]int64, 0, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Sequences.NextSequence(ctx, "exeat:MTU:2025")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, got, n)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, v := range got {
		assert.Equal(t, int64(i+1), v)
	}
}
