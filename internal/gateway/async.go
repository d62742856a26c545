package gateway

import (
	"github.com/kevin07696/gateway-sdk/pkg/dispatch"
	apperrors "github.com/kevin07696/gateway-sdk/pkg/errors"
)

// runAsync runs call on a dispatcher worker and hands its result to cb once.
// After dispatcher shutdown cb receives a cancelled error and call never runs.
// A panic in call is delivered to cb as a server error.
func runAsync(d *dispatch.Dispatcher, task string, cb Callback, call func() (string, error)) {
	if cb == nil {
		cb = func(string, error) {}
	}

	delivered := false
	started := d.Run(task, func() {
		body, err := call()
		delivered = true
		cb(body, err)
	}, func(err error) {
		if !delivered {
			cb("", apperrors.Wrap(apperrors.CategoryServer, "Request aborted unexpectedly", err))
		}
	})
	if !started {
		go cb("", apperrors.NewCancelledError("Client has been shut down"))
	}
}
