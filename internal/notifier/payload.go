package notifier

import (
	"encoding/json"

	"github.com/phrazzld/taskstate/internal/domain"
)

// TaskSnapshot is the per-task wire representation pushed to subscribers.
// ID and PK carry the same value; older clients read pk, newer ones id.
type TaskSnapshot struct {
	ID          string `json:"id"`
	PK          string `json:"pk"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Description string `json:"description"`
}

// TasksFrame is the outbound frame format: one consolidated snapshot of
// every task the receiving connection watches.
type TasksFrame struct {
	Tasks []TaskSnapshot `json:"tasks"`
}

// NewTasksFrame builds a TasksFrame from task records.
func NewTasksFrame(records []*domain.TaskRecord) TasksFrame {
	frame := TasksFrame{Tasks: make([]TaskSnapshot, 0, len(records))}
	for _, record := range records {
		frame.Tasks = append(frame.Tasks, TaskSnapshot{
			ID:          record.JobID.String(),
			PK:          record.JobID.String(),
			Status:      string(record.Status),
			Progress:    record.Progress,
			Description: record.Description,
		})
	}
	return frame
}

// Encode serializes the frame to its wire form.
func (f TasksFrame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
