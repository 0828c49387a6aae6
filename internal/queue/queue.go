package queue

import (
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/models"
)

// EventQueue 事件队列
// 生产者并发 Push（非阻塞），调度循环每个 tick 调一次 Drain
// 底层为带缓冲 channel，push/drain 天然原子
type EventQueue struct {
	items  chan models.IngestedItem
	logger *zap.Logger
}

// NewEventQueue 创建事件队列，capacity 为缓冲上限
func NewEventQueue(capacity int, logger *zap.Logger) *EventQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EventQueue{
		items:  make(chan models.IngestedItem, capacity),
		logger: logger,
	}
}

// Push 非阻塞入队，队列已满时丢弃并返回 false
func (q *EventQueue) Push(item models.IngestedItem) bool {
	select {
	case q.items <- item:
		return true
	default:
		if q.logger != nil {
			q.logger.Warn("event queue full, item dropped",
				zap.String("session_id", item.SessionID),
				zap.String("input_type", item.InputType))
		}
		return false
	}
}

// Drain 取出当前全部积压条目，按入队顺序返回
// 调用后队列立即为空，之后入队的条目归属下一个 tick
func (q *EventQueue) Drain() []models.IngestedItem {
	var drained []models.IngestedItem
	for {
		select {
		case item := <-q.items:
			drained = append(drained, item)
		default:
			return drained
		}
	}
}

// Size 当前积压条目数
func (q *EventQueue) Size() int {
	return len(q.items)
}
