package parallel

// Future holds the result of a task submitted to a Pool.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Get blocks until the task finishes and returns its value and error. A panic
// inside the task is returned as an *errors.PanicError.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.val, f.err
}

// Wait blocks until the task finishes and returns its error.
func (f *Future[T]) Wait() error {
	<-f.done
	return f.err
}

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}
