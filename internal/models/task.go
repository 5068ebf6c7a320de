package models

import "time"

// TaskStatus is the lifecycle state of one import run.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition can happen.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// ImportTask is the persisted record of one import run.
type ImportTask struct {
	ID            string     `json:"id"`
	Filename      string     `json:"filename"`
	Status        TaskStatus `json:"status"`
	Progress      int        `json:"progress"`
	TotalRows     int64      `json:"total_rows"`
	ProcessedRows int64      `json:"processed_rows"`
	ErrorMessage  *string    `json:"error_message"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

// Snapshot returns the subset of the record exposed to progress pollers.
func (t ImportTask) Snapshot() TaskSnapshot {
	return TaskSnapshot{
		Status:        t.Status,
		Progress:      t.Progress,
		ProcessedRows: t.ProcessedRows,
		TotalRows:     t.TotalRows,
		ErrorMessage:  t.ErrorMessage,
	}
}

// TaskSnapshot is what a progress poll observes.
type TaskSnapshot struct {
	Status        TaskStatus `json:"status"`
	Progress      int        `json:"progress"`
	ProcessedRows int64      `json:"processed_rows"`
	TotalRows     int64      `json:"total_rows"`
	ErrorMessage  *string    `json:"error_message"`
}

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

// UploadCompletePayload is the data of the upload_complete event.
type UploadCompletePayload struct {
	TaskID    string     `json:"task_id"`
	Filename  string     `json:"filename"`
	TotalRows int64      `json:"total_rows"`
	Status    TaskStatus `json:"status"`
}
