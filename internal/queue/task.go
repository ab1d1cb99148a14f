/**
 * Queue task contract
 *
 * The wire shape shared by the enqueue client and the worker consumer.
 */

package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeProcessTranscript routes transcript jobs to the worker.
const TaskTypeProcessTranscript = "transcript:process"

// DefaultQueueName is the asynq queue transcripts flow through.
const DefaultQueueName = "transcripts"

// TranscriptTask is one queued document.
type TranscriptTask struct {
	JobID      string `json:"jobId"`
	PropertyID string `json:"propertyId,omitempty"`
	Filename   string `json:"filename"`
	FileData   []byte `json:"fileData"`
}

// NewProcessTask serializes a transcript job into an asynq task.
func NewProcessTask(t *TranscriptTask) (*asynq.Task, error) {
	if t.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if len(t.FileData) == 0 {
		return nil, fmt.Errorf("file data is required")
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return asynq.NewTask(TaskTypeProcessTranscript, raw), nil
}
