package model

// Task types
const (
	TaskTypeGenerate = "music:generate"
	TaskTypeSync     = "music:sync"
)

// Queue names
const (
	QueueGeneration = "generation"
	QueueSync       = "sync"
)

// GenerateTaskPayload asks a worker to dispatch a stored record to the external service
type GenerateTaskPayload struct {
	RecordID string `json:"recordId"`
}

// SyncTaskPayload asks a worker to poll the external service for a record
type SyncTaskPayload struct {
	RecordID string `json:"recordId"`
	Poll     int    `json:"poll"`
}
