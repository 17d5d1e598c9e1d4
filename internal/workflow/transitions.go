// Package workflow is the exeat approval state machine.
//
// A request moves porter -> hod -> dsa -> Completed. Each staff verdict either
// forwards it to the next stage, grants it at the last stage, or ends it.
package workflow

import "exeat/internal/model"

// Outcome is the status and stage a request moves to after a verdict.
type Outcome struct {
	Status model.Status
	Stage  model.Stage
}

var rejected = Outcome{Status: model.StatusRejected, Stage: model.StageCompleted}

// Declined and Rejected share a row. The label the actor chose is kept in the trail.
var transitions = map[model.Stage]map[model.Action]Outcome{
	model.StagePorter: {
		model.ActionApproved: {Status: model.StatusHold, Stage: model.StageHOD},
		model.ActionDeclined: rejected,
		model.ActionRejected: rejected,
	},
	model.StageHOD: {
		model.ActionApproved: {Status: model.StatusHold, Stage: model.StageDSA},
		model.ActionDeclined: rejected,
		model.ActionRejected: rejected,
	},
	model.StageDSA: {
		model.ActionApproved: {Status: model.StatusApproved, Stage: model.StageCompleted},
		model.ActionDeclined: rejected,
		model.ActionRejected: rejected,
	},
}

// Next returns the outcome of applying action at stage. ok is false for the
// terminal stage and for actions that are not verdicts.
func Next(stage model.Stage, action model.Action) (Outcome, bool) {
	row, ok := transitions[stage]
	if !ok {
		return Outcome{}, false
	}
	out, ok := row[action]
	return out, ok
}
