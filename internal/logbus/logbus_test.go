package logbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-gateway/internal/model"
)

func entry(msg string) model.LogEntry {
	return model.LogEntry{Timestamp: time.Now(), Level: model.LogInfo, Message: msg}
}

func TestAppendAndRecent(t *testing.T) {
	b := New()
	b.Append(entry("one"))
	b.Append(entry("two"))

	recent := b.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[1].Message)
}

func TestRecent_CapsAtRequestedN(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		b.Append(entry("x"))
	}
	assert.Len(t, b.Recent(2), 2)
}

func TestAppend_EvictsBeyondCapacity(t *testing.T) {
	b := New()
	for i := 0; i < Capacity+10; i++ {
		b.Append(entry("x"))
	}
	assert.Len(t, b.Recent(Capacity+10), Capacity)
}

func TestSubscribe_ReceivesAppendedEntries(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Append(entry("hello"))
	select {
	case got := <-ch:
		assert.Equal(t, "hello", got.Message)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fan-out")
	}
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestAppend_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Append(entry("x"))
	}
	assert.Len(t, b.Recent(subscriberBuffer+10), subscriberBuffer+10)
}
