package utils

import (
	"context"
	"errors"
	"strings"
)

// ─── ERROR CLASSIFICATION ─────────────────────────────────────────────────

func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errorStr := strings.ToLower(err.Error())
	return strings.Contains(errorStr, "timeout") || strings.Contains(errorStr, "connection reset")
}

func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	// Infrastructure failures that should stop the worker
	errorStr := strings.ToLower(err.Error())

	// RabbitMQ connection issues
	if strings.Contains(errorStr, "connection closed") || strings.Contains(errorStr, "channel closed") {
		return true
	}

	// AWS authentication issues
	if strings.Contains(errorStr, "invalid credentials") || strings.Contains(errorStr, "access denied") {
		return true
	}

	// System resource issues
	if strings.Contains(errorStr, "no space left") || strings.Contains(errorStr, "out of memory") {
		return true
	}

	return false
}
