package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	componentShutdownDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_sdk_component_shutdown_duration_seconds",
		Help:    "Time taken to shut down individual components",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"component"})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sdk_shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// Func shuts down one component
type Func func(context.Context) error

type component struct {
	name string
	fn   Func
}

// Manager runs registered shutdown hooks in reverse registration order.
// Hooks run one at a time: a dispatcher must drain before the store it
// writes to is closed.
type Manager struct {
	logger     *zap.Logger
	timeout    time.Duration
	mu         sync.Mutex
	components []component
	once       sync.Once
}

// NewManager creates a new shutdown manager
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a hook. The last registered hook runs first.
func (m *Manager) Register(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components = append(m.components, component{name: name, fn: fn})
}

// RegisterNoErr registers a hook that cannot fail
func (m *Manager) RegisterNoErr(name string, fn func()) {
	m.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// Shutdown runs every hook once, sharing one timeout. It returns the
// number of hooks that failed. Later calls are no-ops.
func (m *Manager) Shutdown() int {
	failures := 0
	m.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.mu.Lock()
		components := make([]component, len(m.components))
		copy(components, m.components)
		m.mu.Unlock()

		for i := len(components) - 1; i >= 0; i-- {
			if !m.run(ctx, components[i]) {
				failures++
			}
		}
	})
	return failures
}

func (m *Manager) run(ctx context.Context, c component) bool {
	start := time.Now()
	defer func() {
		componentShutdownDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	}()

	if err := c.fn(ctx); err != nil {
		shutdownErrors.WithLabelValues(c.name).Inc()
		m.logger.Error("Component shutdown failed",
			zap.String("component", c.name),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		return false
	}

	m.logger.Debug("Component shut down",
		zap.String("component", c.name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return true
}
