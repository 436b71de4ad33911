package cache

import (
	"context"
	"time"
)

// JobState is the lifecycle state of a pipeline job
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStatus is the last known state of a pipeline job
type JobStatus struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId,omitempty"`
	Filename     string    `json:"filename"`
	State        JobState  `json:"state"`
	Message      string    `json:"status"`
	Progress     int       `json:"progress"`
	ProcessedURL string    `json:"processedUrl,omitempty"`
	Detections   int       `json:"detections"`
	RecordingID  int64     `json:"recordingId,omitempty"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// JobStore keeps job status for polling clients
type JobStore interface {
	Put(ctx context.Context, status JobStatus) error
	Get(ctx context.Context, id string) (JobStatus, bool, error)
	Close() error
}

// Config contains cache configuration
type Config struct {
	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	PoolSize  int           `yaml:"pool_size" mapstructure:"pool_size"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Writes    int64 `json:"writes"`
	Dropped   int64 `json:"dropped"`
	TotalKeys int64 `json:"total_keys"`
}
