package services_test

import (
	"context"
	"testing"

	"clipstitch/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithRequestIndex(ctx, 4)
	ctx = services.WithStage(ctx, "cutting")
	ctx = services.WithSourceID(ctx, "dQw4w9WgXcQ")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if idx, ok := services.RequestIndexFromContext(ctx); !ok || idx != 4 {
		t.Fatalf("unexpected request index: %v %v", idx, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "cutting" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if sid, ok := services.SourceIDFromContext(ctx); !ok || sid != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected source id: %v %v", sid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.RequestIndexFromContext(ctx); ok {
		t.Fatal("expected no request index")
	}
}
