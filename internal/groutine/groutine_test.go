package groutine

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGoNamesGoroutine(t *testing.T) {
	type result struct {
		name  string
		label string
	}
	done := make(chan result, 1)

	Go(nil, "worker-42", func(ctx context.Context) {
		label, _ := pprof.Label(ctx, "goroutine_name")
		done <- result{name: GetName(ctx), label: label}
	})

	r := <-done
	assert.Equal(t, "worker-42", r.name, "context MUST carry the goroutine name")
	assert.Equal(t, "worker-42", r.label, "pprof label MUST carry the goroutine name")
}

func TestGetNameWithoutName(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Empty(t, GetName(nil))
}
