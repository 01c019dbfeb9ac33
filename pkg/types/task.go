package types

import "time"

// TaskType represents the type of scheduled task
type TaskType string

const (
	TaskTypeCollect    TaskType = "COLLECT"
	TaskTypeRollupHour TaskType = "ROLLUP_HOUR"
	TaskTypeRollupDay  TaskType = "ROLLUP_DAY"
)

// TaskStatus represents the state of a task or rollup window
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "RUNNING"
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusSkipped   TaskStatus = "SKIPPED"
)

// Task is one unit of scheduled work
type Task struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	CreatedAt   time.Time  `json:"created_at"`
}

// RollupEntry identifies one rollup window of one resource
type RollupEntry struct {
	Kind        ResourceKind `db:"kind" json:"kind"`
	Key         string       `db:"resource_key" json:"key"`
	Granularity Granularity  `db:"granularity" json:"granularity"`
	WindowEnd   time.Time    `db:"window_end" json:"window_end"`
}
