package config

// Queue names shared by the client and the worker.
const (
	JobQueue    = "texture_jobs"
	StatusQueue = "status_queue"

	StatusExchange   = "texture"
	StatusRoutingKey = "status"
)

// Worker is the number of consumers started per queue.
var Worker = map[string]int{
	JobQueue: 2,
}
