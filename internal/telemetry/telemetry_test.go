package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDisabledByDefault(t *testing.T) {
	t.Setenv("GIMPORT_OTEL_ENABLED", "")
	if Enabled() {
		t.Fatal("Enabled() = true without GIMPORT_OTEL_ENABLED")
	}
	if err := Init(context.Background(), "gimport", "test"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Shutdown(context.Background())

	ctx, end := StartStage(context.Background(), "fetch", attribute.String("gimport.project", "foo"))
	if ctx == nil {
		t.Fatal("StartStage returned nil context")
	}
	end(errors.New("boom"))

	RecordImport(ctx, "project", "success")
	RecordChange(ctx, "foo", "replayed")
	RecordGroupsCreated(ctx, 2)
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Errorf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Errorf("firstNonEmpty = %q", got)
	}
}
