package parsing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/winstondavid829/ats-platform/internal/config"
	"github.com/winstondavid829/ats-platform/internal/logger"
	"github.com/winstondavid829/ats-platform/internal/storage"
)

// Worker 解析任务消费端。
// 从解析队列消费 ParseRequestedMessage 并交给编排器执行，
// 消费并发度等于配置的工作协程数（每个协程一条独立消费通道）。
type Worker struct {
	mq           *storage.RabbitMQ
	orchestrator *Orchestrator
	cfg          *config.RabbitMQConfig

	stops []chan<- struct{}
}

// NewWorker 创建解析任务消费端。
func NewWorker(mq *storage.RabbitMQ, orchestrator *Orchestrator, cfg *config.RabbitMQConfig) *Worker {
	return &Worker{
		mq:           mq,
		orchestrator: orchestrator,
		cfg:          cfg,
	}
}

// Start 声明拓扑并启动消费者。
// 交换机/队列声明是幂等的，多实例同时启动安全。
func (w *Worker) Start(ctx context.Context) error {
	if err := w.mq.EnsureExchange(w.cfg.ApplicationEventsExchange, "direct", true); err != nil {
		return fmt.Errorf("声明申请事件交换机失败: %w", err)
	}
	if err := w.mq.EnsureQueue(w.cfg.ParseRequestQueue, true); err != nil {
		return fmt.Errorf("声明解析队列失败: %w", err)
	}
	if err := w.mq.BindQueue(w.cfg.ParseRequestQueue, w.cfg.ApplicationEventsExchange, w.cfg.ParseRequestedRoutingKey); err != nil {
		return fmt.Errorf("绑定解析队列失败: %w", err)
	}

	workers := w.cfg.ParseWorkers
	if workers <= 0 {
		workers = 1
	}
	prefetch := w.cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}

	for i := 0; i < workers; i++ {
		stop, err := w.mq.StartConsumer(w.cfg.ParseRequestQueue, prefetch, w.handle)
		if err != nil {
			w.Stop()
			return fmt.Errorf("启动解析消费者失败: %w", err)
		}
		w.stops = append(w.stops, stop)
	}

	logger.Info().
		Int("workers", workers).
		Str("queue", w.cfg.ParseRequestQueue).
		Msg("解析任务消费端已启动")
	return nil
}

// Stop 停止全部消费者。
func (w *Worker) Stop() {
	for _, stop := range w.stops {
		close(stop)
	}
	w.stops = nil
}

// handle 处理一条解析任务消息。
//
// ack契约：解析失败是软失败，编排器内部消化后这里照常返回true
// 确认消息；只有消息本体无法反序列化时返回true直接丢弃（重新入队
// 也不会变好）。返回false重新入队只留给未来的基础设施瞬断场景。
func (w *Worker) handle(body []byte) bool {
	ctx := logger.WithContext(context.Background())

	var msg storage.ParseRequestedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Error().Err(err).Msg("解析任务消息反序列化失败, 丢弃")
		return true
	}
	if msg.ApplicationID == "" {
		logger.Error().Str("task_id", msg.TaskID).Msg("解析任务消息缺少申请ID, 丢弃")
		return true
	}

	logger.Info().
		Str("task_id", msg.TaskID).
		Str("application_id", msg.ApplicationID).
		Str("trigger", msg.Trigger).
		Msg("收到解析任务")

	w.orchestrator.Parse(ctx, msg.ApplicationID)
	return true
}
