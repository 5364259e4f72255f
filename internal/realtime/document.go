package realtime

import (
	"errors"
	"sync"
	"time"
)

// DefaultDebounceWindow is the quiet period before a local edit is flushed.
const DefaultDebounceWindow = 500 * time.Millisecond

// ErrNotSynced is returned for local edits before the initial state arrived.
var ErrNotSynced = errors.New("document not initialized")

// Document is one replica of a server-owned shared value. The note and the
// proposal list are two instances of the same pattern, parameterized by
// value type. Local edits apply optimistically and are flushed whole (never
// a diff) after a debounce window; the window is a single logical slot, so
// rearming cancels the pending flush and only the latest value is ever
// sent. Remote updates from the local identity are discarded (echo
// suppression), equal values are ignored, everything else overwrites.
// There is no client-side lock between replicas: the last write observed in
// the server's broadcast order wins.
type Document[T any] struct {
	mu sync.Mutex

	synced bool
	value  T

	localID string
	window  time.Duration

	timer *time.Timer
	gen   uint64 // flush slot generation; stale timer fires are dropped

	send     func(T)
	clone    func(T) T
	equal    func(a, b T) bool
	onChange func()
}

// NewDocument creates an uninitialized document replica. send receives a
// private copy of the value on every flush. clone and equal define the
// value semantics.
func NewDocument[T any](localID string, window time.Duration, clone func(T) T, equal func(a, b T) bool, send func(T)) *Document[T] {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Document[T]{
		localID: localID,
		window:  window,
		send:    send,
		clone:   clone,
		equal:   equal,
	}
}

// OnChange registers the re-render notification for remote-caused changes.
func (d *Document[T]) OnChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

// Synced reports whether the initial state has arrived.
func (d *Document[T]) Synced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.synced
}

// Init installs the server's initial state and moves the document to
// Synced.
func (d *Document[T]) Init(v T) {
	d.mu.Lock()
	d.value = d.clone(v)
	d.synced = true
	fn := d.onChange
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Value returns a private copy of the current value.
func (d *Document[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clone(d.value)
}

// Edit applies a local optimistic mutation and (re)arms the debounce
// timer. Every keystroke-level edit restarts the window instead of queuing
// a send; when the timer fires, the value read at that moment is flushed,
// so the outbound envelope always reflects the latest state, never a copy
// cached when the timer was armed.
func (d *Document[T]) Edit(mutate func(*T)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.synced {
		return ErrNotSynced
	}

	mutate(&d.value)
	d.armLocked()
	return nil
}

// Mutate applies a local mutation without scheduling a flush. Used when
// the caller will flush explicitly or when the mutation is a forced
// re-sample before posting.
func (d *Document[T]) Mutate(mutate func(*T)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.synced {
		return ErrNotSynced
	}
	mutate(&d.value)
	return nil
}

// Flush cancels any pending debounce and sends the current value now.
func (d *Document[T]) Flush() {
	d.mu.Lock()
	if !d.synced {
		d.mu.Unlock()
		return
	}
	d.cancelLocked()
	v := d.clone(d.value)
	send := d.send
	d.mu.Unlock()

	if send != nil {
		send(v)
	}
}

// ApplyRemote reconciles a server-broadcast snapshot. It reports whether
// the local value changed. merge may be nil, in which case the remote
// value simply overwrites; a non-nil merge receives private copies of the
// local and remote values and returns the value to install (used for
// focus-preserving partial overwrite on structured documents).
func (d *Document[T]) ApplyRemote(sender string, v T, merge func(local, remote T) T) bool {
	d.mu.Lock()

	if !d.synced {
		// Treat an update before initial state as the initial state.
		d.value = d.clone(v)
		d.synced = true
		fn := d.onChange
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
		return true
	}

	// Self-echo suppression: the local optimistic state is already
	// correct; the round-tripped copy may be stale.
	if sender == d.localID {
		d.mu.Unlock()
		return false
	}

	if d.equal(d.value, v) {
		d.mu.Unlock()
		return false
	}

	if merge != nil {
		d.value = merge(d.clone(d.value), d.clone(v))
	} else {
		d.value = d.clone(v)
	}
	fn := d.onChange
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true
}

// Close cancels any pending flush.
func (d *Document[T]) Close() {
	d.mu.Lock()
	d.cancelLocked()
	d.mu.Unlock()
}

func (d *Document[T]) armLocked() {
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.fire(gen)
	})
}

func (d *Document[T]) cancelLocked() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Document[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.synced {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	v := d.clone(d.value)
	send := d.send
	d.mu.Unlock()

	if send != nil {
		send(v)
	}
}
