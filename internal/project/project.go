// Package project derives stable project identifiers from working directories.
package project

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
)

// Project groups sessions that share a working directory.
type Project struct {
	ID        string `json:"id"`
	Directory string `json:"directory"`
}

// ID returns the deterministic project identifier for a directory.
// The same directory always maps to the same id, regardless of trailing
// slashes or relative segments.
func ID(directory string) string {
	normalized := Normalize(directory)
	h := fnv.New64a()
	h.Write([]byte(normalized))
	return fmt.Sprintf("prj_%016x", h.Sum64())
}

// Normalize cleans a directory path into its canonical comparison form.
func Normalize(directory string) string {
	trimmed := strings.TrimSpace(directory)
	if trimmed == "" {
		return ""
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		trimmed = abs
	}
	return filepath.Clean(trimmed)
}

// For returns the Project for a directory.
func For(directory string) Project {
	normalized := Normalize(directory)
	return Project{
		ID:        ID(normalized),
		Directory: normalized,
	}
}
