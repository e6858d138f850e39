package dispatcher

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/distflow/localizer/pkg/containers"
	derror "github.com/distflow/localizer/pkg/errors"
	"github.com/distflow/localizer/pkg/localizer/model"
)

// Handler consumes resource events.
type Handler interface {
	Handle(ev model.ResourceEvent)
}

// Dispatcher is the process-wide resource event bus. Work is sharded
// by resource identity: events and submitted closures that share an
// identity run serialized, in FIFO order, on a single shard goroutine.
// This is the ordering guarantee the tracker's removal protocol relies
// on: a removal submitted for an identity can never interleave with
// that identity's events.
type Dispatcher struct {
	shards []*shard

	mu       sync.RWMutex
	handlers map[model.Visibility][]Handler

	pending   atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type shard struct {
	queue   *containers.SliceQueue[func()]
	closeCh chan struct{}
}

// NewDispatcher creates a dispatcher with the given number of shards
// and starts their goroutines.
func NewDispatcher(shardCount int) *Dispatcher {
	if shardCount <= 0 {
		shardCount = 1
	}

	d := &Dispatcher{
		shards:   make([]*shard, shardCount),
		handlers: make(map[model.Visibility][]Handler),
	}
	for i := range d.shards {
		s := &shard{
			queue:   containers.NewSliceQueue[func()](),
			closeCh: make(chan struct{}),
		}
		d.shards[i] = s
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runShard(s)
		}()
	}
	return d
}

// Register subscribes a handler to all events of one visibility class.
// Registration is expected to happen before dispatching starts.
func (d *Dispatcher) Register(visibility model.Visibility, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[visibility] = append(d.handlers[visibility], handler)
}

// Dispatch delivers the event to every handler registered for the
// event's visibility class, on the shard owning the event's identity.
func (d *Dispatcher) Dispatch(ev model.ResourceEvent) error {
	return d.Submit(ev.Identity.Key(), func() {
		d.mu.RLock()
		handlers := d.handlers[ev.Identity.Visibility]
		d.mu.RUnlock()

		if len(handlers) == 0 {
			log.L().Warn("no handler registered for event",
				zap.Stringer("event-type", ev.Type),
				zap.Stringer("resource", ev.Identity))
			return
		}
		for _, handler := range handlers {
			handler.Handle(ev)
		}
	})
}

// Submit runs fn on the shard owning key, serialized with all other
// work for that key. It never blocks.
func (d *Dispatcher) Submit(key string, fn func()) error {
	if d.closed.Load() {
		return derror.ErrDispatcherClosed.GenWithStackByArgs()
	}

	d.pending.Add(1)
	d.shardFor(key).queue.Add(func() {
		defer d.pending.Sub(1)
		fn()
	})
	return nil
}

// Flush blocks until all work enqueued before the call has been
// executed, or the context expires.
func (d *Dispatcher) Flush(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for d.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops the shard goroutines. Work not yet started is dropped.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		for _, s := range d.shards {
			close(s.closeCh)
		}
		d.wg.Wait()
	})
}

func (d *Dispatcher) shardFor(key string) *shard {
	hasher := fnv.New32a()
	// fnv never returns a write error.
	_, _ = hasher.Write([]byte(key))
	return d.shards[int(hasher.Sum32())%len(d.shards)]
}

func (d *Dispatcher) runShard(s *shard) {
	for {
		select {
		case <-s.closeCh:
			return
		case <-s.queue.C:
		}

		for {
			fn, ok := s.queue.Pop()
			if !ok {
				break
			}
			fn()

			select {
			case <-s.closeCh:
				return
			default:
			}
		}
	}
}
