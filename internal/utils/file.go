package utils

import (
	"fmt"
	"os"
)

func ReadImageBuffer(imagePath string) ([]byte, error) {
	buffer, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("error while reading image :%w", err)
	}
	return buffer, nil
}

func WriteImageBuffer(imagePath string, buffer []byte) error {
	if err := os.WriteFile(imagePath, buffer, 0o644); err != nil {
		return fmt.Errorf("error while writing image :%w", err)
	}
	return nil
}

// CheckReadable reports whether path names an existing regular file that can be opened.
func CheckReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("asset %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("asset %q is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("asset %q is not readable: %w", path, err)
	}
	return f.Close()
}
