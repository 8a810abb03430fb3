// Package recorder streams measurements to an append-only, comma-separated
// log from a dedicated background writer.
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/torosent/latbench/internal/measurement"
)

var (
	// ErrNotOpen is returned by Save before Open.
	ErrNotOpen = errors.New("recorder: not open")
	// ErrClosed is returned once Close has been requested.
	ErrClosed = errors.New("recorder: closed")
	// ErrLocked is returned when another recorder holds the output file.
	ErrLocked = errors.New("recorder: output file is locked by another run")
)

// State is the recorder lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateOpen
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Recorder accepts batches without blocking and writes them in FIFO order.
// The output file is created (and truncated) on the first write, not on Open.
type Recorder struct {
	mu      sync.Mutex
	state   State
	path    string
	pending measurement.Batch
	err     error

	wake chan struct{}
	done chan struct{}

	written atomic.Int64
	logger  *zap.Logger

	// owned by the writer goroutine
	file *os.File
	lock *flock.Flock
	buf  *bufio.Writer
	line []byte
}

// New returns an uninitialized recorder.
func New(logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Open starts the background writer for path. Calling it again while open is
// a no-op; reopening after Close is not supported.
func (r *Recorder) Open(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateOpen:
		if path != r.path {
			return fmt.Errorf("recorder: already open on %s", r.path)
		}
		return nil
	case StateDraining, StateClosed:
		return ErrClosed
	}
	if path == "" {
		return errors.New("recorder: output path is required")
	}
	r.path = path
	r.state = StateOpen
	go r.run()
	return nil
}

// Save queues batch for the writer and returns immediately. A previous write
// failure is returned here so the caller can stop the run.
func (r *Recorder) Save(batch measurement.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateUninitialized:
		return ErrNotOpen
	case StateDraining, StateClosed:
		return ErrClosed
	}
	if r.err != nil {
		return r.err
	}
	if len(batch) == 0 {
		return nil
	}
	r.pending = append(r.pending, batch...)
	r.signal()
	return nil
}

// Close asks the writer to flush pending batches and release the file, and
// blocks until it has exited. It returns the first write error, if any.
// Closing an unopened recorder just marks it closed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	switch r.state {
	case StateUninitialized:
		r.state = StateClosed
		close(r.done)
		r.mu.Unlock()
		return nil
	case StateOpen:
		r.state = StateDraining
		r.signal()
	}
	r.mu.Unlock()

	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateClosed
	return r.err
}

// State reports the lifecycle position.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Path returns the output path given to Open.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Written returns how many measurements have reached the file.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// signal wakes the writer; callers hold mu.
func (r *Recorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for range r.wake {
		r.mu.Lock()
		entries := r.pending
		r.pending = nil
		closing := r.state == StateDraining
		failed := r.err != nil
		r.mu.Unlock()

		if len(entries) > 0 && !failed {
			if err := r.write(entries); err != nil {
				r.logger.Error("recorder write failed", zap.String("path", r.path), zap.Error(err))
				r.mu.Lock()
				r.err = err
				r.mu.Unlock()
			}
		}

		if closing {
			if err := r.release(); err != nil {
				r.mu.Lock()
				if r.err == nil {
					r.err = err
				}
				r.mu.Unlock()
			}
			return
		}
	}
}

func (r *Recorder) write(entries measurement.Batch) error {
	if r.file == nil {
		if err := r.create(); err != nil {
			return err
		}
	}
	for _, m := range entries {
		r.line = m.AppendLine(r.line[:0])
		if _, err := r.buf.Write(r.line); err != nil {
			return fmt.Errorf("recorder: write %s: %w", r.path, err)
		}
	}
	if err := r.buf.Flush(); err != nil {
		return fmt.Errorf("recorder: flush %s: %w", r.path, err)
	}
	r.written.Add(int64(len(entries)))
	return nil
}

func (r *Recorder) create() error {
	lock := flock.New(r.path)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("recorder: lock %s: %w", r.path, err)
	}
	if !locked {
		return ErrLocked
	}
	file, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return fmt.Errorf("recorder: create %s: %w", r.path, err)
	}
	r.lock = lock
	r.file = file
	r.buf = bufio.NewWriterSize(file, 64*1024)
	r.logger.Debug("recorder output created", zap.String("path", r.path))
	return nil
}

func (r *Recorder) release() error {
	if r.file == nil {
		return nil
	}
	var errs []error
	if err := r.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: flush %s: %w", r.path, err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: close %s: %w", r.path, err))
	}
	if err := r.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: unlock %s: %w", r.path, err))
	}
	r.file = nil
	return errors.Join(errs...)
}
