// Package history reconstructs session state from on-disk event logs.
// Each session directory holds a line-oriented descriptor file and an
// append-only newline-delimited event stream.
package history

import (
	"bufio"
	"io"
	"strings"
	"time"
)

// Descriptor and event file names inside a session directory.
const (
	DescriptorFile = "session.meta"
	EventsFile     = "events.jsonl"
)

// Descriptor represents the fields found in a session's metadata file.
type Descriptor struct {
	Cwd       string    `json:"cwd"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Summary   string    `json:"summary"`
}

// ParseDescriptor extracts metadata from a key-value descriptor reader.
// Blank lines and '#' comment lines are ignored; values may be quoted.
func ParseDescriptor(r io.Reader) (Descriptor, error) {
	scanner := bufio.NewScanner(r)
	var desc Descriptor

	for scanner.Scan() {
		trimmed := strings.TrimSpace(scanner.Text())
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		// Simple key: value parsing
		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		switch key {
		case "cwd":
			desc.Cwd = value
		case "summary":
			desc.Summary = value
		case "created_at":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				desc.CreatedAt = t
			}
		case "updated_at":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				desc.UpdatedAt = t
			}
		}
	}

	return desc, scanner.Err()
}

// ParseDescriptorString extracts metadata from a descriptor string.
func ParseDescriptorString(content string) (Descriptor, error) {
	return ParseDescriptor(strings.NewReader(content))
}

// Valid reports whether the descriptor has enough to anchor a session.
func (d Descriptor) Valid() bool {
	return d.Cwd != ""
}
