package utils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

func PathUtil(dir string, key string) (string, error) {
	filePath := filepath.Join(dir, filepath.FromSlash(key))

	// Create all parent directories
	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	return filePath, nil
}

// Object keys are laid out per task:
//
//	tasks/<taskId>/status.json
//	tasks/<taskId>/raw/<file>
//	tasks/<taskId>/processed/<map>.<ext>
func TaskPrefix(taskID string) string {
	return path.Join("tasks", taskID) + "/"
}

func StatusKey(taskID string) string {
	return path.Join("tasks", taskID, "status.json")
}

func RawKey(taskID string, fileName string) string {
	return path.Join("tasks", taskID, "raw", filepath.Base(fileName))
}

func ProcessedPrefix(taskID string) string {
	return path.Join("tasks", taskID, "processed") + "/"
}

func ProcessedKey(taskID string, fileName string) string {
	return path.Join("tasks", taskID, "processed", fileName)
}
