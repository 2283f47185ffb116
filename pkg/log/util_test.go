package log

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestToFields(t *testing.T) {
	now := time.Now()
	err := errors.New("boom")

	tests := []struct {
		name  string
		input []any
	}{
		{"empty input", []any{}},
		{"string-int-bool", []any{"a", "x", "b", 123, "c", true}},
		{"time type", []any{"t", now}},
		{"float type", []any{"pi", 3.14}},
		{"bytes", []any{"data", []byte("xyz")}},
		{"error only", []any{err}},
		{"multiple errors", []any{err, errors.New("again")}},
		{"mixed field types", []any{"msg", "ok", zap.String("x", "y"), "num", 42}},
		{"odd number of args", []any{"key1", "val1", "key2"}},
		{"non-string key", []any{123, "value", true, 99}},
		{"nil values", []any{"a", nil, "b", (*int)(nil)}},
		{"map value", []any{"a", map[string]string{"xyz": "123"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)

			if fields == nil && len(tt.input) > 0 {
				t.Errorf("nil fields for non-empty input: %v", tt.input)
			}

			for _, f := range fields {
				if f.Key == "" {
					t.Errorf("field has empty key: %+v", f)
				}
			}
		})
	}
}

func TestFlattenFieldsSorted(t *testing.T) {
	got := flattenFields(map[string]string{"version": "1.4.0", "app": "driver"})
	want := []any{"app", "driver", "version", "1.4.0"}

	if len(got) != len(want) {
		t.Fatalf("flattenFields() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flattenFields()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	if errs := opts.Validate(); len(errs) != 0 {
		t.Fatalf("default options should be valid, got %v", errs)
	}

	opts.Format = "xml"
	opts.Level = "loud"
	if errs := opts.Validate(); len(errs) != 2 {
		t.Fatalf("Validate() returned %d errors, want 2: %v", len(errs), errs)
	}
}

func TestContextLogger(t *testing.T) {
	l := NewNopLogger().WithName("conn")
	ctx := NewContext(context.Background(), l)

	if got := FromContext(ctx); got != l {
		t.Errorf("FromContext() did not return the stored logger")
	}
	if got := FromContext(context.Background()); got != Std() {
		t.Errorf("FromContext() without a logger should fall back to Std()")
	}
}
