package model

type QueueStatus string

const (
	QueueStatusWaiting    QueueStatus = "WAITING"
	QueueStatusReady      QueueStatus = "READY"
	QueueStatusNotInQueue QueueStatus = "NOT_IN_QUEUE"
)

type QueuePosition struct {
	EventID              string      `json:"event_id"`
	UserID               string      `json:"user_id"`
	Position             int64       `json:"position"`
	TotalInQueue         int64       `json:"total_in_queue"`
	Status               QueueStatus `json:"status"`
	EstimatedWaitSeconds int64       `json:"estimated_wait_seconds"`
}

// EstimateWaitSeconds is floor(position / batchSize) * intervalSeconds.
func EstimateWaitSeconds(position int64, batchSize int, intervalSeconds int64) int64 {
	if position <= 0 || batchSize <= 0 {
		return 0
	}
	return (position / int64(batchSize)) * intervalSeconds
}
