package ports

import "context"

// AnalyticsSender records one named analytics event per call
type AnalyticsSender interface {
	Send(ctx context.Context, event string)
}
