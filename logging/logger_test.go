package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	if logger == nil {
		t.Fatal("Expected logger to be created")
	}

	// Verify it's a logrus.Entry with the component field
	if logger.Data["component"] != "test-component" {
		t.Errorf("Expected component to be 'test-component', got %v", logger.Data["component"])
	}
}

func TestNewLoggerSingleton(t *testing.T) {
	a := NewLogger("singleton-check")
	b := NewLogger("singleton-check")
	if a != b {
		t.Error("Expected the same entry for repeated NewLogger calls")
	}
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&TextFormatter{Config: FormatConfig{}})

	entry := logger.WithField("component", "test")
	entry.Info("Test message")

	output := buf.String()

	if !strings.Contains(output, "[INFO]") {
		t.Errorf("Expected output to contain [INFO], got: %s", output)
	}
	if !strings.Contains(output, "[test]") {
		t.Errorf("Expected output to contain [test], got: %s", output)
	}
	if !strings.Contains(output, "Test message") {
		t.Errorf("Expected output to contain 'Test message', got: %s", output)
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "test message",
				Data: logrus.Fields{
					"component": "test-component",
					"key1":      "value1",
				},
			},
			want:    []string{"[INFO]", "[test-component]", "test message", "key1=value1"},
			notWant: []string{},
		},
		{
			name: "simple format",
			config: FormatConfig{
				DisableTimestamp: true,
				DisableComponent: true,
			},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "plain message",
				Data: logrus.Fields{
					"component": "hidden",
				},
			},
			want:    []string{"[WARN]", "plain message"},
			notWant: []string{"[hidden]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &TextFormatter{Config: tt.config}
			out, err := f.Format(tt.entry)
			if err != nil {
				t.Fatalf("Format returned error: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(string(out), want) {
					t.Errorf("Expected output to contain %q, got: %s", want, out)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(string(out), notWant) {
					t.Errorf("Expected output to NOT contain %q, got: %s", notWant, out)
				}
			}
		})
	}
}

func TestWarnLevelShortened(t *testing.T) {
	f := &TextFormatter{Config: FormatConfig{DisableTimestamp: true}}
	out, err := f.Format(&logrus.Entry{
		Level:   logrus.WarnLevel,
		Message: "careful",
		Data:    logrus.Fields{},
	})
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	if !strings.Contains(string(out), "[WARN]") || strings.Contains(string(out), "WARNING") {
		t.Errorf("Expected shortened [WARN] level, got: %s", out)
	}
}
