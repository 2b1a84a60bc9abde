package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithBuildID(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-123")

	lc := GetContext(ctx)
	if lc.BuildID != "build-123" {
		t.Errorf("expected build-123, got %s", lc.BuildID)
	}
}

func TestWithDevice(t *testing.T) {
	ctx := context.Background()
	ctx = WithDevice(ctx, "sensor-456")

	lc := GetContext(ctx)
	if lc.Device != "sensor-456" {
		t.Errorf("expected sensor-456, got %s", lc.Device)
	}
}

func TestWithStage(t *testing.T) {
	ctx := context.Background()
	ctx = WithStage(ctx, "checkout")

	lc := GetContext(ctx)
	if lc.Stage != "checkout" {
		t.Errorf("expected checkout, got %s", lc.Stage)
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-789")

	lc := GetContext(ctx)
	if lc.RequestID != "req-789" {
		t.Errorf("expected req-789, got %s", lc.RequestID)
	}
}

func TestMultipleContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-1")
	ctx = WithDevice(ctx, "sensor-1")
	ctx = WithStage(ctx, "build")
	ctx = WithRequestID(ctx, "req-1")

	lc := GetContext(ctx)

	if lc.BuildID != "build-1" {
		t.Error("expected build-1")
	}
	if lc.Device != "sensor-1" {
		t.Error("expected sensor-1")
	}
	if lc.Stage != "build" {
		t.Error("expected build")
	}
	if lc.RequestID != "req-1" {
		t.Error("expected req-1")
	}
}

func TestContextChaining(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-1")
	ctx = WithDevice(ctx, "sensor-1")

	lc := GetContext(ctx)

	if lc.BuildID != "build-1" {
		t.Error("BuildID was lost in chaining")
	}
	if lc.Device != "sensor-1" {
		t.Error("Device was lost in chaining")
	}
}

func TestOverwriteContextValue(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-1")
	ctx = WithBuildID(ctx, "build-2")

	lc := GetContext(ctx)
	if lc.BuildID != "build-2" {
		t.Errorf("expected build-2, got %s", lc.BuildID)
	}
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	lc := GetContext(ctx)

	if lc.BuildID != "" || lc.Device != "" || lc.Stage != "" {
		t.Error("expected empty context")
	}
}


func TestInfoContext(t *testing.T) {
	// Capture log output
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-1")
	ctx = WithDevice(ctx, "sensor-1")

	InfoContext(ctx, "test message", slog.String("extra", "value"))

	output := buf.String()
	if !contains(output, "build-1") {
		t.Error("expected build-1 in log output")
	}
	if !contains(output, "sensor-1") {
		t.Error("expected sensor-1 in log output")
	}
	if !contains(output, "test message") {
		t.Error("expected message in log output")
	}
}

func TestWarnContext(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := context.Background()
	ctx = WithStage(ctx, "checkout")

	WarnContext(ctx, "warning message", slog.String("reason", "timeout"))

	output := buf.String()
	if !contains(output, "checkout") {
		t.Error("expected stage in log output")
	}
	if !contains(output, "warning message") {
		t.Error("expected message in log output")
	}
}

func TestErrorContext(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-error")
	ctx = WithRequestID(ctx, "req-error")

	ErrorContext(ctx, "error occurred", slog.String("error", "connection failed"))

	output := buf.String()
	if !contains(output, "build-error") {
		t.Error("expected build-error in log output")
	}
	if !contains(output, "req-error") {
		t.Error("expected req-error in log output")
	}
}

func TestDebugContext(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")

	DebugContext(ctx, "debug info", slog.Int("count", 42))

	output := buf.String()
	if !contains(output, "req-123") {
		t.Error("expected req-123 in log output")
	}
}




func TestContextIsolation(t *testing.T) {
	ctx1 := context.Background()
	ctx1 = WithBuildID(ctx1, "build-1")

	ctx2 := context.Background()
	ctx2 = WithBuildID(ctx2, "build-2")

	lc1 := GetContext(ctx1)
	lc2 := GetContext(ctx2)

	if lc1.BuildID != "build-1" {
		t.Error("context1 modified")
	}
	if lc2.BuildID != "build-2" {
		t.Error("context2 modified")
	}
}


func TestComplexContextFlow(t *testing.T) {
	ctx := context.Background()

	// Simulate a multi-stage build
	ctx = WithBuildID(ctx, "build-123")
	ctx = WithDevice(ctx, "sensor-456")

	// Checkout stage
	checkoutCtx := WithStage(ctx, "checkout")
	checkoutCtx = WithRequestID(checkoutCtx, "req-checkout-1")

	lc := GetContext(checkoutCtx)
	if lc.BuildID != "build-123" || lc.Device != "sensor-456" ||
		lc.Stage != "checkout" || lc.RequestID != "req-checkout-1" {
		t.Error("complex context flow failed")
	}

	// Build stage
	buildCtx := WithStage(ctx, "build")
	buildCtx = WithRequestID(buildCtx, "req-build-1")

	lc = GetContext(buildCtx)
	if lc.BuildID != "build-123" || lc.Device != "sensor-456" ||
		lc.Stage != "build" || lc.RequestID != "req-build-1" {
		t.Error("complex context flow for build failed")
	}
}

func TestGetLogAttrsWithMixedValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithBuildID(ctx, "build-1")
	ctx = WithDevice(ctx, "sensor-1")

	attrs := getLogAttrs(ctx)

	if len(attrs) < 2 {
		t.Errorf("expected at least 2 attributes, got %d", len(attrs))
	}

	// Verify that empty fields are not included
	attrStr := ""
	for _, attr := range attrs {
		attrStr += attr.Key
	}

	if !contains(attrStr, "build.id") {
		t.Error("expected build.id attribute")
	}
	if !contains(attrStr, "device") {
		t.Error("expected device attribute")
	}
	if contains(attrStr, "stage") && !contains(attrStr, "build.id") {
		t.Error("unexpected stage attribute when not set")
	}
}

func TestAttrsIncludesRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	attrs := Attrs(ctx)
	if len(attrs) != 1 || attrs[0].Key != "request.id" || attrs[0].Value.String() != "req-9" {
		t.Errorf("unexpected attrs %v", attrs)
	}
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}
