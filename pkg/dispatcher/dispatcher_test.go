package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	derror "github.com/distflow/localizer/pkg/errors"
	"github.com/distflow/localizer/pkg/localizer/model"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []model.ResourceEvent
}

func (h *recordingHandler) Handle(ev model.ResourceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestDispatchByVisibility(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(4)
	defer d.Close()

	private := &recordingHandler{}
	public := &recordingHandler{}
	d.Register(model.VisibilityPrivate, private)
	d.Register(model.VisibilityPublic, public)

	err := d.Dispatch(model.ResourceEvent{
		Identity: model.ResourceIdentity{
			Source:     "hdfs://ns/app/lib.jar",
			Visibility: model.VisibilityPrivate,
		},
		Type: model.EventRequest,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))

	require.Equal(t, 1, private.count())
	require.Equal(t, 0, public.count())
}

// Work sharing a key must run in submission order even with many
// shards and concurrent submitters on other keys.
func TestSubmitSerializesPerKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(8)
	defer d.Close()

	const (
		keyNum      = 16
		tasksPerKey = 200
	)

	var mu sync.Mutex
	got := make(map[string][]int)

	var wg sync.WaitGroup
	for k := 0; k < keyNum; k++ {
		key := fmt.Sprintf("key-%d", k)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < tasksPerKey; i++ {
				i := i
				err := d.Submit(key, func() {
					mu.Lock()
					got[key] = append(got[key], i)
					mu.Unlock()
				})
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Flush(ctx))

	for k := 0; k < keyNum; k++ {
		key := fmt.Sprintf("key-%d", k)
		require.Len(t, got[key], tasksPerKey)
		for i, v := range got[key] {
			require.Equal(t, i, v)
		}
	}
}

func TestSubmitAfterClose(t *testing.T) {
	d := NewDispatcher(1)
	d.Close()

	err := d.Submit("key", func() {})
	require.Error(t, err)
	require.True(t, derror.ErrDispatcherClosed.Equal(err))
}

func TestCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := NewDispatcher(2)
	d.Close()
	d.Close()
}
