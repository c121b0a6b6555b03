package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/pagopa/io-functions-admin-sub002/pkg/domain"
	audit "github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit"
	"github.com/pagopa/io-functions-admin-sub002/pkg/platform/audit/store/memory"
)

const testFiscalCode = id.FiscalCode("RSSMRA85T10A562S")

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	event := audit.Event{
		FiscalCode: testFiscalCode,
		Action:     string(audit.EventRequestCreated),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), testFiscalCode)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventRequestCreated), events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp should be filled in")
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	event := audit.Event{
		FiscalCode: testFiscalCode,
		Action:     string(audit.EventProcessingClosed),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	// Wait for async processing
	require.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), testFiscalCode)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		event := audit.Event{
			FiscalCode: testFiscalCode,
			Action:     string(audit.EventProcessingFailed),
		}
		err := pub.Emit(context.Background(), event)
		require.NoError(t, err)
	}

	// Close should drain all events
	pub.Close()

	events, err := store.ListByFiscalCode(context.Background(), testFiscalCode)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}
