package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RedisForwarder mirrors emitted room events onto a Redis pub/sub channel
// named "trivion:room:{code}" so a second process, or an observability
// sidecar, can watch game activity without joining the room as a member.
// It is wrapped in a circuit breaker: when Redis is unhealthy the forwarder
// degrades to a no-op instead of piling up blocked goroutines behind a dead
// dependency.
type RedisForwarder struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewRedisForwarder dials addr and verifies connectivity with a short ping.
func NewRedisForwarder(addr, password string, logger *zap.Logger) (*RedisForwarder, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	settings := gobreaker.Settings{
		Name:        "trivion-redis-forwarder",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warn("redis forwarder circuit breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	}

	return &RedisForwarder{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}, nil
}

func channelName(roomCode string) string {
	return "trivion:room:" + roomCode
}

// Forward publishes frame to the room's channel. Failures, including an
// open circuit breaker, are logged and swallowed: forwarding is best-effort
// and must never affect in-process delivery, which the Bus already
// completed before invoking Forward.
func (f *RedisForwarder) Forward(ctx context.Context, roomCode string, frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		if f.logger != nil {
			f.logger.Error("redis forwarder marshal failed", zap.Error(err))
		}
		return
	}

	_, err = f.cb.Execute(func() (any, error) {
		return nil, f.client.Publish(ctx, channelName(roomCode), payload).Err()
	})
	if err != nil && f.logger != nil {
		f.logger.Warn("redis forward failed", zap.String("room", roomCode), zap.Error(err))
	}
}

// Ping verifies Redis connectivity, used by the health handler.
func (f *RedisForwarder) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (f *RedisForwarder) Close() error {
	return f.client.Close()
}

// Subscribe listens on the room's channel and invokes handler for every
// message received until ctx is cancelled. wg.Done is called on exit so
// callers can wait for clean shutdown.
func (f *RedisForwarder) Subscribe(ctx context.Context, roomCode string, wg *sync.WaitGroup, handler func(Frame)) {
	defer wg.Done()

	sub := f.client.Subscribe(ctx, channelName(roomCode))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame Frame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				if f.logger != nil {
					f.logger.Error("redis forwarder decode failed", zap.Error(err))
				}
				continue
			}
			handler(frame)
		}
	}
}
