package observability

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnalyticsRecorder counts analytics events in prometheus and logs them.
// It implements ports.AnalyticsSender.
type AnalyticsRecorder struct {
	logger    *zap.Logger
	sessionID string
}

// NewAnalyticsRecorder creates a recorder with a fresh session id
func NewAnalyticsRecorder(logger *zap.Logger) *AnalyticsRecorder {
	return &AnalyticsRecorder{
		logger:    logger,
		sessionID: uuid.NewString(),
	}
}

// Send records one occurrence of event
func (r *AnalyticsRecorder) Send(ctx context.Context, event string) {
	analyticsEventsTotal.WithLabelValues(event).Inc()

	r.logger.Debug("Analytics event",
		zap.String("event", event),
		zap.String("session_id", r.sessionID),
	)
}

// SessionID identifies the events of one SDK session
func (r *AnalyticsRecorder) SessionID() string {
	return r.sessionID
}
