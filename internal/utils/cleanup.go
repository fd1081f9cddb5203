package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// PrefixDeleter is the minimal interface needed from the object store.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// LocalTaskDir is the scratch directory the worker uses for one task.
func LocalTaskDir(workDir, taskID string) string {
	return filepath.Join(workDir, "tasks", taskID)
}

// ValidateTaskID rejects ids that are not a single path element, so a task
// directory can never resolve outside the work dir.
func ValidateTaskID(taskID string) error {
	switch {
	case taskID == "":
		return fmt.Errorf("task id cannot be empty")
	case taskID == "." || taskID == ".." || filepath.Base(taskID) != taskID || strings.ContainsAny(taskID, `/\`):
		return fmt.Errorf("invalid task id %q", taskID)
	}
	return nil
}

// RemoveLocalTask removes the worker's scratch directory for one task.
func RemoveLocalTask(workDir, taskID string) error {
	if err := ValidateTaskID(taskID); err != nil {
		return err
	}
	dir := LocalTaskDir(workDir, taskID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove task dir %q: %w", dir, err)
	}
	zap.L().Debug("removed local task dir", zap.String("dir", dir))
	return nil
}

func DeleteRemotePrefix(ctx context.Context, store PrefixDeleter, prefix string) error {
	n, err := store.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("delete objects under %q: %w", prefix, err)
	}
	zap.L().Debug("objects deleted", zap.String("prefix", prefix), zap.Int("count", n))
	return nil
}
