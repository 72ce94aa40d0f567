package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"gavel/engine"
)

type consumerOptions struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
}

type ConsumerOption func(*consumerOptions)

// WithConsumerLogger 設置日誌記錄器
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(o *consumerOptions) {
		o.logger = logger
	}
}

// WithConsumerBufferSize 設置下游channel的緩衝大小
func WithConsumerBufferSize(size int) ConsumerOption {
	return func(o *consumerOptions) {
		o.bufferSize = size
	}
}

// WithConsumerBlockTimeout 設置XREAD的阻塞逾時
func WithConsumerBlockTimeout(d time.Duration) ConsumerOption {
	return func(o *consumerOptions) {
		o.blockTimeout = d
	}
}

// EventConsumer 從Redis stream讀取引擎通知並送往下游channel。
// 從stream尾端($)開始讀，只轉發啟動之後的新事件。
type EventConsumer struct {
	client     *redis.Client
	stream     string
	lastID     string
	downStream chan engine.Event
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool
	logger     *slog.Logger
	options    consumerOptions
}

// NewEventConsumer 建立事件consumer
func NewEventConsumer(client *redis.Client, stream string, opts ...ConsumerOption) (*EventConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := consumerOptions{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	consumer := &EventConsumer{
		client:  client,
		stream:  stream,
		lastID:  "$",
		logger:  options.logger.With(slog.String("caller", "EventConsumer"), slog.String("stream", stream)),
		options: options,
	}
	consumer.closed.Store(true)
	return consumer, nil
}

// Start 啟動背景讀取goroutine
func (c *EventConsumer) Start() {
	if !c.closed.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.downStream = make(chan engine.Event, c.options.bufferSize)
	c.cancelFunc = cancel
	c.closed.Store(false)
	c.logger.Info("starting event consumer")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.logger.Info("event consumer goroutine stopped")
		defer close(c.downStream)

		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := c.fetch(ctx); err != nil {
					if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
						continue
					}
					c.logger.Error("fetch events error", slog.Any("error", err))
					// 非預期錯誤時稍作等待，避免對Redis連續重試
					select {
					case <-ctx.Done():
					case <-time.After(c.options.blockTimeout):
					}
				}
			}
		}
	}()
}

func (c *EventConsumer) fetch(ctx context.Context) error {
	streams, err := c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{c.stream, c.lastID},
		Count:   int64(c.options.bufferSize),
		Block:   c.options.blockTimeout,
	}).Result()
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.lastID = message.ID
			event, err := DecodeEvent(message.Values)
			if err != nil {
				c.logger.Warn("skip undecodable message", slog.String("messageId", message.ID), slog.Any("error", err))
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case c.downStream <- event:
			}
		}
	}
	return nil
}

// Subscribe 回傳下游channel，consumer關閉時channel會被close
func (c *EventConsumer) Subscribe() <-chan engine.Event {
	return c.downStream
}

// Close 停止consumer並等待背景goroutine結束
func (c *EventConsumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.logger.Info("closing event consumer")
	c.cancelFunc()
	c.wg.Wait()
	c.logger.Info("event consumer closed")
}
