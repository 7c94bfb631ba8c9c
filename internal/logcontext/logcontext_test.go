package logcontext

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCtx_DoesNotMutateParent(t *testing.T) {
	parent := AppendCtx(context.Background(), slog.String("runId", "r1"))
	child := AppendCtx(parent, slog.Int64("paymentId", 7))

	assert.Len(t, FromContext(parent), 1)
	assert.Len(t, FromContext(child), 2)
}

func TestContextHandler_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ContextHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := AppendCtx(context.Background(), slog.String("runId", "r1"))
	logger.InfoContext(ctx, "sweep started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "r1", record["runId"])
	assert.Equal(t, "sweep started", record["msg"])
}
