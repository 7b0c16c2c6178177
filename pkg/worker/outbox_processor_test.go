package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository/repositorytest"
)

type fakeBroker struct {
	published []string
	err       error
}

func (f *fakeBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, channel)
	return nil
}

func (f *fakeBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeBroker) Close() error { return nil }

func addEvent(t *testing.T, store *repositorytest.Store, eventType string) *model.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(model.AppointmentEventPayload{})
	require.NoError(t, err)
	event := &model.OutboxEvent{EventType: eventType, Payload: payload}
	require.NoError(t, store.OutboxRepo().CreateTx(context.Background(), nil, event))
	return event
}

func newProcessor(store *repositorytest.Store, broker *fakeBroker) *OutboxProcessor {
	return NewOutboxProcessor(store.OutboxRepo(), broker, nil, nil, zerolog.Nop(), Config{
		BatchSize:  10,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
}

func TestDrainBatchPublishesAndMarksProcessed(t *testing.T) {
	store := repositorytest.NewStore()
	broker := &fakeBroker{}
	addEvent(t, store, model.EventAppointmentBooked)
	addEvent(t, store, model.EventAppointmentCancelled)

	p := newProcessor(store, broker)
	require.NoError(t, p.drainBatch(context.Background()))

	assert.Equal(t, []string{model.EventAppointmentBooked, model.EventAppointmentCancelled}, broker.published)
	for _, e := range store.Events {
		assert.Equal(t, model.OutboxStatusProcessed, e.Status)
		assert.NotNil(t, e.ProcessedAt)
	}
}

func TestDrainBatchSchedulesRetryOnFailure(t *testing.T) {
	store := repositorytest.NewStore()
	broker := &fakeBroker{err: errors.New("redis down")}
	addEvent(t, store, model.EventAppointmentBooked)

	p := newProcessor(store, broker)
	require.NoError(t, p.drainBatch(context.Background()))

	e := store.Events[0]
	assert.Equal(t, model.OutboxStatusRetry, e.Status)
	assert.Equal(t, 1, e.RetryCount)
	require.NotNil(t, e.ErrorMessage)
	assert.Contains(t, *e.ErrorMessage, "redis down")
}

func TestDrainBatchGivesUpAfterMaxRetries(t *testing.T) {
	store := repositorytest.NewStore()
	broker := &fakeBroker{err: errors.New("redis down")}
	event := addEvent(t, store, model.EventAppointmentBooked)

	p := newProcessor(store, broker)
	for i := 0; i < 3; i++ {
		// Make the retry due immediately so the next pass picks it up.
		require.NoError(t, p.drainBatch(context.Background()))
		for _, e := range store.Events {
			if e.RetryAt != nil {
				past := time.Now().Add(-time.Second)
				e.RetryAt = &past
			}
		}
	}

	for _, e := range store.Events {
		if e.ID == event.ID {
			assert.Equal(t, model.OutboxStatusFailed, e.Status)
		}
	}
}
