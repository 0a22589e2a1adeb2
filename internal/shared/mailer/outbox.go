package mailer

import (
	"context"
	"log"
	"sync"
	"time"

	"memoria/internal/shared/queue"
)

// ============================================================================
// QueuedMailer - 投递到发件箱
// ============================================================================

// QueuedMailer 把邮件写入发件箱，由 Worker 异步发送
type QueuedMailer struct {
	queue queue.MailQueue
}

var _ Mailer = (*QueuedMailer)(nil)

// NewQueuedMailer 创建发件箱投递器
func NewQueuedMailer(q queue.MailQueue) *QueuedMailer {
	return &QueuedMailer{queue: q}
}

// Send 入队即返回
func (m *QueuedMailer) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := m.queue.EnqueueMail(ctx, &queue.MailMessage{
		To:        msg.To,
		Subject:   msg.Subject,
		Text:      msg.Text,
		HTML:      msg.HTML,
		CreatedAt: time.Now(),
	})
	return err
}

// ============================================================================
// Worker - 消费发件箱
// ============================================================================

// WorkerConfig 消费参数
type WorkerConfig struct {
	ConsumerID  string
	ReadCount   int64
	ReadTimeout time.Duration
	RetryDelay  time.Duration

	// ClaimIdle pending 邮件空闲超过该时长才重新认领
	ClaimIdle time.Duration
	// ClaimInterval 两次认领之间的间隔
	ClaimInterval time.Duration
	// Report 每次认领后上报发件箱长度和未确认数量，可为空
	Report func(length, pending int64)
}

// DefaultWorkerConfig 默认消费参数
func DefaultWorkerConfig(consumerID string) WorkerConfig {
	return WorkerConfig{
		ConsumerID:  consumerID,
		ReadCount:   10,
		ReadTimeout: 5 * time.Second,
		RetryDelay:  time.Second,

		ClaimIdle:     time.Minute,
		ClaimInterval: 30 * time.Second,
	}
}

// Worker 从发件箱读取邮件并交给实际后端发送
//
// 发送成功才 ACK，失败的邮件留在消费者组的 pending 列表中，
// 空闲超过 ClaimIdle 后由 reclaim 重新认领并再次发送。
type Worker struct {
	queue  queue.MailQueue
	sender Mailer
	cfg    WorkerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewWorker 创建发件箱消费者
func NewWorker(q queue.MailQueue, sender Mailer, cfg WorkerConfig) *Worker {
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	return &Worker{
		queue:  q,
		sender: sender,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start 阻塞运行，直到 ctx 取消或调用 Stop
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	if err := w.queue.CreateMailConsumerGroup(ctx); err != nil {
		log.Printf("[mailer.group.failed] error=%v", err)
		return
	}
	log.Printf("[mailer.start] consumer_id=%s", w.cfg.ConsumerID)

	var lastClaim time.Time
	for {
		select {
		case <-ctx.Done():
			log.Printf("[mailer.stop] reason=context_cancelled")
			return
		case <-w.stopCh:
			log.Printf("[mailer.stop] reason=stop_signal")
			return
		default:
		}

		if time.Since(lastClaim) >= w.cfg.ClaimInterval {
			w.reclaim(ctx)
			lastClaim = time.Now()
		}

		messages, err := w.queue.ConsumeMail(ctx, w.cfg.ConsumerID, w.cfg.ReadCount, w.cfg.ReadTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("[mailer.consume.failed] error=%v", err)
			time.Sleep(w.cfg.RetryDelay)
			continue
		}

		for _, msg := range messages {
			w.deliver(ctx, msg)
		}
	}
}

// Stop 停止消费
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// reclaim 重新发送空闲超时的未确认邮件（含其他已下线消费者的）
func (w *Worker) reclaim(ctx context.Context) {
	messages, err := w.queue.ClaimStaleMail(ctx, w.cfg.ConsumerID, w.cfg.ClaimIdle, w.cfg.ReadCount)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[mailer.claim.failed] error=%v", err)
		}
		return
	}
	if len(messages) > 0 {
		log.Printf("[mailer.claim] count=%d", len(messages))
	}
	for _, msg := range messages {
		w.deliver(ctx, msg)
	}
	w.report(ctx)
}

func (w *Worker) report(ctx context.Context) {
	if w.cfg.Report == nil {
		return
	}
	length, err := w.queue.GetMailQueueLength(ctx)
	if err != nil {
		log.Printf("[mailer.stats.failed] error=%v", err)
		return
	}
	pending, err := w.queue.GetMailPendingCount(ctx)
	if err != nil {
		log.Printf("[mailer.stats.failed] error=%v", err)
		return
	}
	w.cfg.Report(length, pending)
}

func (w *Worker) deliver(ctx context.Context, msg *queue.MailMessage) {
	err := w.sender.Send(ctx, &Message{
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		log.Printf("[mailer.send.failed] msg_id=%s to=%s error=%v", msg.ID, msg.To, err)
		return
	}
	if err := w.queue.AckMail(ctx, msg.ID); err != nil {
		log.Printf("[mailer.ack.failed] msg_id=%s error=%v", msg.ID, err)
		return
	}
	log.Printf("[mailer.sent] msg_id=%s to=%s delay_ms=%d", msg.ID, msg.To, time.Since(msg.CreatedAt).Milliseconds())
}
