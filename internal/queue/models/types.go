package models

import "github.com/mahirjain10/texture-workers/internal/types"

// ProcessingError tells the consumer whether the delivery should be requeued.
type ProcessingError struct {
	Err     error
	Requeue bool
}

func (p ProcessingError) Error() string {
	return p.Err.Error()
}

func (p ProcessingError) Unwrap() error {
	return p.Err
}

type RabbitMqMessage = types.JobMessage
