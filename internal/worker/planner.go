package worker

import (
	"time"

	"github.com/tsanders-rh/kubecostd/internal/rollup"
	"github.com/tsanders-rh/kubecostd/pkg/types"
)

// Planner decides which tasks a tick runs
type Planner struct {
	last time.Time
}

// NewPlanner creates a planner that has last ticked at last. A zero last time
// means the first tick only collects.
func NewPlanner(last time.Time) *Planner {
	return &Planner{last: last}
}

// Plan returns the tasks for a tick at now: always a collection, then one
// hour rollup per hour boundary crossed since the previous tick, then one day
// rollup per day boundary crossed.
func (p *Planner) Plan(now time.Time) []*types.Task {
	now = now.UTC()
	tasks := []*types.Task{newTask(types.TaskTypeCollect, now, now, now)}

	if !p.last.IsZero() && now.After(p.last) {
		for _, w := range rollup.CompletedWindows(types.GranularityHour, p.last, now) {
			tasks = append(tasks, newTask(types.TaskTypeRollupHour, w.Start, w.End, now))
		}
		for _, w := range rollup.CompletedWindows(types.GranularityDay, p.last, now) {
			tasks = append(tasks, newTask(types.TaskTypeRollupDay, w.Start, w.End, now))
		}
	}

	p.last = now
	return tasks
}

// CatchUp returns rollup tasks for the last completed hour and day
func CatchUp(now time.Time) []*types.Task {
	now = now.UTC()
	hs, he := rollup.CompletedWindow(types.GranularityHour, now)
	ds, de := rollup.CompletedWindow(types.GranularityDay, now)
	return []*types.Task{
		newTask(types.TaskTypeRollupHour, hs, he, now),
		newTask(types.TaskTypeRollupDay, ds, de, now),
	}
}

func newTask(taskType types.TaskType, start, end, now time.Time) *types.Task {
	return &types.Task{
		ID:          types.GenerateTaskID(),
		Type:        taskType,
		Status:      types.TaskStatusPending,
		WindowStart: start,
		WindowEnd:   end,
		CreatedAt:   now,
	}
}

// targetGranularity maps a rollup task to the granularity it writes
func targetGranularity(taskType types.TaskType) (types.Granularity, bool) {
	switch taskType {
	case types.TaskTypeRollupHour:
		return types.GranularityHour, true
	case types.TaskTypeRollupDay:
		return types.GranularityDay, true
	default:
		return "", false
	}
}
