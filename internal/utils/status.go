package utils

import (
	"time"

	"github.com/mahirjain10/texture-workers/internal/types"
)

const pattern = "status"

func InitStatusRecord(taskID string, phase int, errorMsg string, maps []string) *types.StatusRecord {
	return &types.StatusRecord{TaskID: taskID, Phase: phase, ErrorMsg: errorMsg, Maps: maps, UpdatedAt: time.Now().UTC()}
}

func InitStatusMessage(data *types.StatusRecord) *types.StatusMessage {
	return &types.StatusMessage{Pattern: pattern, Data: *data}
}
