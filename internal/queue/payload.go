package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeScanPrescription is the asynq task type handled by the worker.
const TaskTypeScanPrescription = "scan-prescription"

// ScanPayload is the job data of a scan task
type ScanPayload struct {
	JobID    string `json:"jobId"`
	UserID   string `json:"userId"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitempty"`
	Image    []byte `json:"image"`
}

// UnmarshalJSON accepts the image either as a base64 string or as a
// Node.js Buffer object ({"type":"Buffer","data":[...]}).
func (p *ScanPayload) UnmarshalJSON(data []byte) error {
	type Alias ScanPayload
	aux := &struct {
		Image interface{} `json:"image"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal scan payload: %w", err)
	}

	switch v := aux.Image.(type) {
	case nil:
		p.Image = nil

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 image: %w", err)
		}
		p.Image = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.Image = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.Image[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("image must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// NewScanTask builds a scan task ready for enqueueing
func NewScanTask(payload *ScanPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if payload.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if len(payload.Image) == 0 {
		return nil, fmt.Errorf("image is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scan payload: %w", err)
	}
	return asynq.NewTask(TaskTypeScanPrescription, data, opts...), nil
}

// EnqueueScan submits a scan task to the given queue and returns the task ID.
// The job ID doubles as the task ID, so a job is only queued once.
func EnqueueScan(ctx context.Context, redisURL, queueName string, payload *ScanPayload) (string, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	task, err := NewScanTask(payload)
	if err != nil {
		return "", err
	}

	client := asynq.NewClient(redisOpt)
	defer client.Close()

	info, err := client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(3))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue scan %s: %w", payload.JobID, err)
	}
	return info.ID, nil
}
