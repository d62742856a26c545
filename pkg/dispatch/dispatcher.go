package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var inFlightTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "gateway_sdk_dispatch_in_flight",
	Help: "Number of asynchronous SDK tasks currently running, by task",
}, []string{"task"})

// Dispatcher runs asynchronous SDK work on worker goroutines and tracks it
// so teardown can wait for in-flight callbacks to complete
type Dispatcher struct {
	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed bool
	logger *zap.Logger
	name   string
}

// New creates a new dispatcher
func New(name string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		name:   name,
	}
}

// Go runs fn on a new goroutine as in-flight work.
// Returns false without running fn if shutdown has been initiated.
func (d *Dispatcher) Go(task string, fn func()) bool {
	return d.Run(task, fn, nil)
}

// Run is Go with a recovery hook: if fn panics, onPanic is called on the
// same goroutine with the panic as an error. onPanic may be nil.
func (d *Dispatcher) Run(task string, fn func(), onPanic func(err error)) bool {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return false
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	inFlightTasks.WithLabelValues(task).Inc()

	go func() {
		defer d.wg.Done()
		defer inFlightTasks.WithLabelValues(task).Dec()
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			d.logger.Error("Async task panicked",
				zap.String("dispatcher", d.name),
				zap.String("task", task),
				zap.Any("panic", r),
			)
			if onPanic != nil {
				d.deliverPanic(task, onPanic, fmt.Errorf("task %s panicked: %v", task, r))
			}
		}()

		fn()
	}()

	return true
}

// deliverPanic calls onPanic, containing a second panic from the hook itself
func (d *Dispatcher) deliverPanic(task string, onPanic func(error), err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic hook panicked",
				zap.String("dispatcher", d.name),
				zap.String("task", task),
				zap.Any("panic", r),
			)
		}
	}()
	onPanic(err)
}

// Shutdown rejects new work and waits for in-flight work to complete.
// Returns ctx.Err() if ctx is done first. Safe to call more than once.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.logger.Info("Waiting for in-flight work to complete",
		zap.String("dispatcher", d.name),
	)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("All in-flight work completed",
			zap.String("dispatcher", d.name),
		)
		return nil
	case <-ctx.Done():
		d.logger.Warn("Shutdown timeout - some work may be incomplete",
			zap.String("dispatcher", d.name),
		)
		return ctx.Err()
	}
}
