package codec

import "sync"

// Emitter delivers codec output on a bounded channel. Producers block in
// Emit until the consumer receives or the emitter shuts down; values that
// cannot be delivered are passed to discard so their resources are freed.
type Emitter[T any] struct {
	ch      chan T
	done    chan struct{}
	discard func(T)

	mu       sync.Mutex
	shutdown bool
	inflight sync.WaitGroup
	once     sync.Once
	err      error
}

// NewEmitter creates an emitter with the given channel capacity.
func NewEmitter[T any](capacity int, discard func(T)) *Emitter[T] {
	return &Emitter[T]{
		ch:      make(chan T, capacity),
		done:    make(chan struct{}),
		discard: discard,
	}
}

// C is the consumer side.
func (e *Emitter[T]) C() <-chan T { return e.ch }

// Emit delivers v, reporting false if the emitter shut down first.
func (e *Emitter[T]) Emit(v T) bool {
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		e.drop(v)
		return false
	}
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()

	select {
	case e.ch <- v:
		return true
	case <-e.done:
		e.drop(v)
		return false
	}
}

func (e *Emitter[T]) drop(v T) {
	if e.discard != nil {
		e.discard(v)
	}
}

// Fail records err as the terminal error, keeping the first one, and shuts
// the emitter down. It must not be called from inside Emit.
func (e *Emitter[T]) Fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	e.Close()
}

// Err returns the terminal error, if any.
func (e *Emitter[T]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Done is closed once the emitter starts shutting down.
func (e *Emitter[T]) Done() <-chan struct{} { return e.done }

// Close stops accepting values, abandons blocked Emit calls and closes the
// channel. Values already buffered stay readable.
func (e *Emitter[T]) Close() {
	e.mu.Lock()
	if !e.shutdown {
		e.shutdown = true
		close(e.done)
	}
	e.mu.Unlock()

	e.inflight.Wait()
	e.once.Do(func() { close(e.ch) })
}
