package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PublishDrain(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.Publish(ctx, "topic-a", map[string]string{"k": "1"}))
	require.NoError(t, mem.Publish(ctx, "topic-a", map[string]string{"k": "2"}))
	require.NoError(t, mem.Publish(ctx, "topic-b", map[string]string{"k": "3"}))

	assert.Equal(t, 2, mem.Len("topic-a"))
	assert.Equal(t, 1, mem.Len("topic-b"))

	msgs := mem.Drain("topic-a")
	require.Len(t, msgs, 2)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(msgs[0], &decoded))
	assert.Equal(t, "1", decoded["k"])

	// Drain empties the topic.
	assert.Zero(t, mem.Len("topic-a"))
	assert.Empty(t, mem.Drain("topic-a"))
	assert.Equal(t, 1, mem.Len("topic-b"))
}

func TestMemory_PublishRejectsUnmarshalable(t *testing.T) {
	mem := NewMemory()
	err := mem.Publish(context.Background(), "topic", make(chan int))
	require.Error(t, err)
}
