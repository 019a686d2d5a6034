package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *publisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestAuditEmitBuildsEnvelope(t *testing.T) {
	publisher := new(publisherMock)
	emitter := NewAuditEmitter(publisher, "audit.messenger", "messenger", "test")

	userID := int64(7)
	publisher.On("Publish", mock.Anything, "audit.messenger", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(AuditEnvelope)
		if !ok {
			return false
		}
		return envelope.SchemaVersion == 1 &&
			envelope.EventType == "audit_log" &&
			envelope.Service == "messenger" &&
			envelope.Environment == "test" &&
			envelope.RequestID == "req-1" &&
			envelope.UserID != nil && *envelope.UserID == 7 &&
			envelope.Payload.Level == "WARN" &&
			envelope.Payload.Text == "failed login attempt" &&
			envelope.OccurredAt != ""
	})).Return(nil).Once()

	emitter.Emit(context.Background(), "WARN", "failed login attempt", "req-1", &userID)
	publisher.AssertExpectations(t)
}

func TestAuditEmitSwallowsPublishError(t *testing.T) {
	publisher := new(publisherMock)
	emitter := NewAuditEmitter(publisher, "audit.messenger", "messenger", "test")

	publisher.On("Publish", mock.Anything, "audit.messenger", mock.Anything).
		Return(errors.New("broker down")).Once()

	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "user logged in", "req-2", nil)
	})
	publisher.AssertExpectations(t)
}

func TestAuditEmitNilSafe(t *testing.T) {
	var emitter *AuditEmitter

	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "noop", "req-3", nil)
	})

	withoutPublisher := NewAuditEmitter(nil, "audit.messenger", "messenger", "test")
	require.NotPanics(t, func() {
		withoutPublisher.Emit(context.Background(), "INFO", "noop", "req-3", nil)
	})
}
