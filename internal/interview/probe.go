package interview

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ent0n29/mockinterview/internal/inference"
)

var errPanic = errors.New("recovered panic")

// Availability is the one-shot outcome of probing the primary model.
type Availability struct {
	Available bool
	Model     inference.Model
	Err       error
}

// Probe runs load exactly once. Load errors and panics are logged and
// reported as unavailability; nothing propagates to the caller.
func Probe(ctx context.Context, load inference.ModelLoader) Availability {
	if load == nil {
		return Availability{Err: inference.ErrNotConfigured}
	}

	var model inference.Model
	err := guard(func() error {
		var err error
		model, err = load(ctx)
		return err
	})
	if err == nil && model == nil {
		err = inference.ErrUnavailable
	}
	if err != nil {
		logger().WithError(err).Warn("primary model unavailable, engine will use the fallback path")
		return Availability{Err: err}
	}

	logger().WithField("model", model.Name()).Info("primary model loaded")
	return Availability{Available: true, Model: model}
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return fn()
}

func logger() *log.Entry {
	return log.WithField("component", "interview")
}
