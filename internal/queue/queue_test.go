package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

func item(id string) models.IngestedItem {
	return models.IngestedItem{SessionID: id, InputType: models.InputText}
}

func TestPushAndDrain_Order(t *testing.T) {
	q := NewEventQueue(16, zap.NewNop())

	assert.True(t, q.Push(item("session_a")))
	assert.True(t, q.Push(item("session_b")))
	assert.True(t, q.Push(item("session_c")))
	assert.Equal(t, 3, q.Size())

	drained := q.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, "session_a", drained[0].SessionID)
	assert.Equal(t, "session_b", drained[1].SessionID)
	assert.Equal(t, "session_c", drained[2].SessionID)

	// drain 后队列立即为空
	assert.Equal(t, 0, q.Size())
	assert.Empty(t, q.Drain())
}

func TestPush_FullQueueDrops(t *testing.T) {
	q := NewEventQueue(2, zap.NewNop())

	assert.True(t, q.Push(item("s1")))
	assert.True(t, q.Push(item("s2")))
	// 队列满，非阻塞丢弃
	assert.False(t, q.Push(item("s3")))

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "s1", drained[0].SessionID)
	assert.Equal(t, "s2", drained[1].SessionID)
}

func TestDrain_MidTickPushesBelongToNextDrain(t *testing.T) {
	q := NewEventQueue(16, zap.NewNop())

	q.Push(item("tick1_a"))
	q.Push(item("tick1_b"))

	first := q.Drain()
	require.Len(t, first, 2)

	// drain 之后入队的条目只出现在下一次 drain，且不重复不丢失
	q.Push(item("tick2_a"))

	second := q.Drain()
	require.Len(t, second, 1)
	assert.Equal(t, "tick2_a", second[0].SessionID)

	assert.Empty(t, q.Drain())
}

func TestPush_ConcurrentProducers(t *testing.T) {
	q := NewEventQueue(1000, zap.NewNop())

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Push(item(fmt.Sprintf("p%d_i%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	drained := q.Drain()
	assert.Len(t, drained, 500)

	// 无重复
	seen := make(map[string]bool, len(drained))
	for _, it := range drained {
		assert.False(t, seen[it.SessionID], "duplicate item %s", it.SessionID)
		seen[it.SessionID] = true
	}
}
