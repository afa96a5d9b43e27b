package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, NUL bytes and ".." segments.
func ValidateFilePath(path string) error {
	if err := checkPathBytes(path); err != nil {
		return err
	}

	for _, segment := range strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' }) {
		if segment == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}

	return nil
}

// ValidateFilePathWithBase checks that path resolves inside baseDir. Both are
// resolved against the working directory first, so a base such as
// "../payloads" is accepted as long as path stays beneath it.
func ValidateFilePathWithBase(path, baseDir string) error {
	if err := checkPathBytes(path); err != nil {
		return err
	}
	if err := checkPathBytes(baseDir); err != nil {
		return fmt.Errorf("invalid base directory: %w", err)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", path)
	}

	return nil
}

func checkPathBytes(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("file path contains NUL byte")
	}
	return nil
}
