package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"

	"gavel/engine"
)

// ErrProducerClosed 表示producer尚未啟動或已經關閉
var ErrProducerClosed = errors.New("event producer is closed")

type producerOptions struct {
	logger     *slog.Logger
	bufferSize int
}

type ProducerOption func(*producerOptions)

// WithProducerLogger 設置日誌記錄器
func WithProducerLogger(logger *slog.Logger) ProducerOption {
	return func(o *producerOptions) {
		o.logger = logger
	}
}

// WithProducerBufferSize 設置事件緩衝的初始容量
func WithProducerBufferSize(size int) ProducerOption {
	return func(o *producerOptions) {
		o.bufferSize = size
	}
}

// EventProducer 將引擎通知非同步地寫入Redis stream，
// 實作engine.EventSink。Emit不會阻塞引擎的操作路徑：
// 事件先進入無界緩衝，再由背景goroutine依序XADD。
type EventProducer struct {
	client     *redis.Client
	stream     string
	upstream   *chanx.UnboundedChan[engine.Event]
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool
	logger     *slog.Logger
	options    producerOptions
}

// NewEventProducer 建立事件producer
func NewEventProducer(client *redis.Client, stream string, opts ...ProducerOption) (*EventProducer, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := producerOptions{
		logger:     slog.Default(),
		bufferSize: 100,
	}
	for _, opt := range opts {
		opt(&options)
	}

	producer := &EventProducer{
		client:  client,
		stream:  stream,
		logger:  options.logger.With(slog.String("caller", "EventProducer"), slog.String("stream", stream)),
		options: options,
	}
	producer.closed.Store(true)
	return producer, nil
}

// Start 啟動背景寫入goroutine
func (p *EventProducer) Start() {
	if !p.closed.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.upstream = chanx.NewUnboundedChan[engine.Event](ctx, p.options.bufferSize)
	p.ctx = ctx
	p.cancelFunc = cancel
	p.closed.Store(false)
	p.logger.Info("starting event producer")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("event producer goroutine stopped")

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-p.upstream.Out:
				values, err := EncodeEvent(event)
				if err != nil {
					p.logger.Error("encode event error", slog.String("eventID", event.ID), slog.Any("error", err))
					continue
				}
				id, err := p.client.XAdd(ctx, &redis.XAddArgs{
					Stream: p.stream,
					Values: values,
				}).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					p.logger.Error("publish event error", slog.String("eventID", event.ID), slog.Any("error", err))
					continue
				}
				p.logger.Debug("event published", slog.String("messageId", id), slog.String("kind", string(event.Kind)))
			}
		}
	}()
}

// Emit 實作engine.EventSink，將通知排入緩衝。
// 與Close同時發生時，不會把事件塞進已取消的緩衝。
func (p *EventProducer) Emit(event engine.Event) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	select {
	case <-p.ctx.Done():
		return ErrProducerClosed
	case p.upstream.In <- event:
		return nil
	}
}

// Close 停止producer並等待背景goroutine結束
func (p *EventProducer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.logger.Info("closing event producer")
	p.cancelFunc()
	p.wg.Wait()
	p.logger.Info("event producer closed")
}
