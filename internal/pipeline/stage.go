package pipeline

import (
	"context"

	apperrors "github.com/zsiec/reel/internal/errors"
)

// send delivers v downstream. It reports false when the pipeline was
// cancelled first, in which case v was not delivered.
func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// receive reads the next upstream value. ok is false once the input is
// exhausted or the pipeline was cancelled.
func receive[T any](ctx context.Context, in <-chan T) (v T, ok bool) {
	select {
	case v, ok = <-in:
		return v, ok
	case <-ctx.Done():
		return v, false
	}
}

// forward moves codec results from src downstream with deliver until src
// closes. If deliver gives up, stop shuts the codec down and the remaining
// buffered results are handed to discard.
func forward[T any](src <-chan T, deliver func(T) bool, stop func(), discard func(T)) {
	for v := range src {
		if deliver(v) {
			continue
		}
		if discard != nil {
			discard(v)
		}
		stop()
		for v := range src {
			if discard != nil {
				discard(v)
			}
		}
		return
	}
}

// stageError classifies err with wrap unless it is already a pipeline
// failure forwarded from another stage.
func stageError(wrap func(error) *apperrors.AppError, err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return wrap(err)
}

// firstError prefers the terminal error a codec reported over the error
// returned by the call that noticed it.
func firstError(codecErr, callErr error) error {
	if codecErr != nil {
		return codecErr
	}
	return callErr
}
