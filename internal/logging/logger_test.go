package logging_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"rollscan/internal/logging"
	"rollscan/internal/services"
)

func TestConsoleHandlerIncludesComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logging.NewComponentLogger(logger, "pipeline").Info("stage started", logging.String("stage", "image"))

	line := buf.String()
	if !strings.Contains(line, "pipeline: stage started") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "stage=image") {
		t.Fatalf("expected stage attr, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := services.WithDruid(context.Background(), "hk155fw7898")
	ctx = services.WithStage(ctx, "hole_analysis")
	logging.WithContext(ctx, logger).Info("running")

	line := buf.String()
	if !strings.Contains(line, "druid=hk155fw7898") {
		t.Fatalf("expected druid field, got %q", line)
	}
	if !strings.Contains(line, "stage=hole_analysis") {
		t.Fatalf("expected stage field, got %q", line)
	}
}

func TestJSONFormatEmitsLowercaseLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Warn("slow download")
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("expected lowercase level, got %q", buf.String())
	}
}
