package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/vaccination-api/internal/model"
	"github.com/jwalitptl/vaccination-api/internal/repository/mocks"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
	"github.com/jwalitptl/vaccination-api/pkg/messaging"
	"github.com/jwalitptl/vaccination-api/pkg/metrics"
)

type fakeBroker struct {
	mu        sync.Mutex
	failures  int
	published []published
}

type published struct {
	channel string
	message interface{}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, published{channel: channel, message: message})
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		Channel:       "vaccination.audit",
	}
}

func pendingEvent() *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: model.EventTypeAudit,
		Payload:   json.RawMessage(`{"action":"REGISTER_DOSE"}`),
		Status:    string(model.OutboxStatusProcessing),
	}
}

func TestProcessOncePublishesEnvelope(t *testing.T) {
	repo := new(mocks.OutboxRepository)
	broker := &fakeBroker{failures: 1}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	p := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), m)

	event := pendingEvent()
	repo.On("ClaimPending", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	repo.On("MarkProcessed", mock.Anything, event.ID).Return(nil)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, broker.published, 1)
	assert.Equal(t, "vaccination.audit", broker.published[0].channel)
	msg, ok := broker.published[0].message.(messaging.Message)
	require.True(t, ok)
	assert.Equal(t, event.ID.String(), msg.ID)
	assert.Equal(t, model.EventTypeAudit, msg.Type)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventTypeAudit)))
	repo.AssertExpectations(t)
}

func TestProcessOnceMarksFailedAfterRetries(t *testing.T) {
	repo := new(mocks.OutboxRepository)
	broker := &fakeBroker{failures: 5}
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	p := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), m)

	event := pendingEvent()
	repo.On("ClaimPending", mock.Anything, 10).Return([]*model.OutboxEvent{event}, nil)
	repo.On("MarkFailed", mock.Anything, event.ID, mock.AnythingOfType("string"), 2).Return(nil)

	n, err := p.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, broker.published)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxEventsFailed))
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestProcessOnceClaimError(t *testing.T) {
	repo := new(mocks.OutboxRepository)
	m := metrics.NewMetrics("test", prometheus.NewRegistry())
	p := NewOutboxProcessor(repo, &fakeBroker{}, testConfig(), logger.Nop(), m)

	repo.On("ClaimPending", mock.Anything, 10).Return(nil, errors.New("connection refused"))

	_, err := p.ProcessOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatabaseOperations.WithLabelValues("claim_outbox_events", "error")))
}

func TestNewOutboxProcessorRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	assert.Panics(t, func() {
		NewOutboxProcessor(new(mocks.OutboxRepository), &fakeBroker{}, cfg, logger.Nop(), nil)
	})
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, 3, time.Hour, func() error {
		calls++
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
