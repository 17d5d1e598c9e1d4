package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"exeat/internal/model"
)

func req(id string, stage model.Stage, created, updated time.Time, actors ...string) *model.ExeatRequest {
	return &model.ExeatRequest{ID: id, CurrentStage: stage, CreatedAt: created, UpdatedAt: updated, ActorIDs: actors}
}

func TestSortForStaff(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	list := []*model.ExeatRequest{
		req("A", model.StageHOD, t0, t0.Add(5*time.Hour), "p1"),
		req("B", model.StagePorter, t0, t0.Add(time.Hour)),
		req("D", model.StagePorter, t0, t0.Add(2*time.Hour)),
		req("C", model.StagePorter, t0, t0.Add(2*time.Hour)),
		req("E", model.StageCompleted, t0, t0.Add(9*time.Hour), "p1"),
	}
	SortForStaff(list, model.StagePorter)

	var got []string
	for _, r := range list {
		got = append(got, r.ID)
	}
	assert.Equal(t, []string{"C", "D", "B", "E", "A"}, got)
}

func TestSortForStudent(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	list := []*model.ExeatRequest{
		req("EX-1", model.StagePorter, t0, t0),
		req("EX-3", model.StagePorter, t0.Add(time.Hour), t0),
		req("EX-2", model.StagePorter, t0, t0),
	}
	SortForStudent(list)
	assert.Equal(t, "EX-3", list[0].ID)
	assert.Equal(t, "EX-2", list[1].ID)
	assert.Equal(t, "EX-1", list[2].ID)
}

func TestInStaffQueue(t *testing.T) {
	t0 := time.Now()
	assert.True(t, InStaffQueue(req("A", model.StagePorter, t0, t0), model.StagePorter, "p1"))
	assert.True(t, InStaffQueue(req("A", model.StageCompleted, t0, t0, "s", "p1"), model.StagePorter, "p1"))
	assert.False(t, InStaffQueue(req("A", model.StageHOD, t0, t0, "s", "p2"), model.StagePorter, "p1"))
}
