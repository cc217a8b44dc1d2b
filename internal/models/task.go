package models

import "time"

// TaskState is the lifecycle state of a background task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// Done reports whether the state is terminal.
func (s TaskState) Done() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is a snapshot of a background job and its progress.
type Task struct {
	ID          string      `json:"task_id"`
	Kind        string      `json:"kind"`
	Status      TaskState   `json:"status"`
	Phase       string      `json:"phase,omitempty"`
	Progress    float64     `json:"progress"`
	CurrentFile string      `json:"current_file,omitempty"`
	Completed   int         `json:"completed_files"`
	Total       int         `json:"total_files"`
	Result      *ScanResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ScanResult summarizes a directory scan followed by duplicate detection.
type ScanResult struct {
	Directory     string            `json:"directory"`
	TotalFiles    int               `json:"total_files"`
	TotalSize     int64             `json:"total_size"`
	Fingerprinted int               `json:"fingerprinted"`
	Cached        int               `json:"cached"`
	Failed        int               `json:"failed"`
	Duplicates    *ClusteringResult `json:"duplicates,omitempty"`
	CompletedAt   time.Time         `json:"completed_at"`
}
