// Package listener absorbs bursts of mutation notifications and
// reduces each burst to a single flush after a quiet period.
//
// The debounce is trailing: every notification re-arms the timer, and
// only a full quiet period with no new activity triggers a flush. An
// optional max-wait cap forces a flush during bursts that never go
// quiet (bulk imports).
package listener

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/scribelab/chronicle/pkg/logging"
	"github.com/scribelab/chronicle/pkg/model"
)

// DefaultQuietPeriod is the debounce window used when none is configured.
const DefaultQuietPeriod = 500 * time.Millisecond

const defaultBuffer = 1024

// FlushFunc receives a drained batch. It runs on the listener's single
// worker goroutine, so consecutive flushes never overlap; notifications
// arriving during a flush buffer in the channel and start a new batch.
type FlushFunc func(batch []model.MutationNotification)

// Options tunes the listener.
type Options struct {
	// QuietPeriod is the inactivity window required before a flush.
	// Default: DefaultQuietPeriod.
	QuietPeriod time.Duration
	// MaxWait caps how long a continuous burst can defer a flush.
	// 0 disables the cap.
	MaxWait time.Duration
	// Buffer is the notification channel capacity. Default: 1024.
	Buffer int
	// Logger overrides the global logger.
	Logger *logging.Logger
}

func (o *Options) defaults() {
	if o.QuietPeriod <= 0 {
		o.QuietPeriod = DefaultQuietPeriod
	}
	if o.Buffer <= 0 {
		o.Buffer = defaultBuffer
	}
	if o.Logger == nil {
		o.Logger = logging.WithFields(map[string]any{"component": "listener"})
	}
}

// Listener buffers mutation notifications and debounces them into
// batch flushes. Notify never blocks the caller.
type Listener struct {
	opts  Options
	flush FlushFunc

	notifs  chan model.MutationNotification
	enabled atomic.Bool
	dropped atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a listener and starts its worker. The listener starts
// disabled; call Enable once version control is initialized for the
// store.
func New(flush FlushFunc, opts Options) *Listener {
	opts.defaults()
	l := &Listener{
		opts:   opts,
		flush:  flush,
		notifs: make(chan model.MutationNotification, opts.Buffer),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.loop()
	return l
}

// Enable starts accepting notifications.
func (l *Listener) Enable() {
	l.enabled.Store(true)
}

// Disable drops incoming notifications without buffering. The batch
// accumulated so far is discarded at the next timer fire; it must not
// be committed against a datastore that is about to be replaced.
func (l *Listener) Disable() {
	l.enabled.Store(false)
}

// Enabled reports whether notifications are being accepted.
func (l *Listener) Enabled() bool {
	return l.enabled.Load()
}

// Notify appends a notification to the pending batch and re-arms the
// quiet-period timer. Never blocks: if the buffer is full the
// notification is dropped and counted.
func (l *Listener) Notify(n model.MutationNotification) {
	if !l.enabled.Load() {
		return
	}
	select {
	case l.notifs <- n:
	default:
		if l.dropped.Add(1)%100 == 1 {
			l.opts.Logger.Warn("notification buffer full, dropping", map[string]any{
				"dropped_total": l.dropped.Load(),
			})
		}
	}
}

// Dropped returns how many notifications were lost to a full buffer.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

// Close stops the worker. Pending notifications are discarded.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

func (l *Listener) loop() {
	defer l.wg.Done()

	var (
		batch      []model.MutationNotification
		batchStart time.Time
		timer      *time.Timer
		timerC     <-chan time.Time
	)

	rearm := func(d time.Duration) {
		if timer == nil {
			timer = time.NewTimer(d)
			timerC = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timerC:
			default:
			}
		}
		timer.Reset(d)
	}

	for {
		select {
		case n := <-l.notifs:
			if !l.enabled.Load() {
				continue
			}
			if len(batch) == 0 {
				batchStart = time.Now()
			}
			batch = append(batch, n)

			d := l.opts.QuietPeriod
			if l.opts.MaxWait > 0 {
				if rem := l.opts.MaxWait - time.Since(batchStart); rem < d {
					d = rem
					if d < 0 {
						d = 0
					}
				}
			}
			rearm(d)

		case <-timerC:
			drained := batch
			batch = nil
			if len(drained) == 0 || !l.enabled.Load() {
				continue
			}
			l.flush(drained)

		case <-l.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
