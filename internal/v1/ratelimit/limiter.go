// Package ratelimit implements rate limiting logic using Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/trivionhq/trivion/internal/v1/auth"
	"github.com/trivionhq/trivion/internal/v1/config"
	"github.com/trivionhq/trivion/internal/v1/logging"
	"github.com/trivionhq/trivion/internal/v1/metrics"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

// TokenValidator validates an opaque member token and returns its claims.
// Implemented by *auth.Validator; an interface here keeps the limiter
// package free of a hard dependency on the validator's internals.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.MemberClaims, error)
}

// RateLimiter holds the rate limiter instances
type RateLimiter struct {
	apiGlobal   *limiter.Limiter
	apiPublic   *limiter.Limiter
	apiRooms    *limiter.Limiter
	apiMessages *limiter.Limiter
	wsConnect   *limiter.Limiter
	wsAnswer    *limiter.Limiter
	store       limiter.Store
	redisClient *redis.Client
	validator   TokenValidator
}

// NewRateLimiter creates a new RateLimiter instance
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client, validator TokenValidator) (*RateLimiter, error) {
	apiGlobalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid API global rate: %w", err)
	}

	apiPublicRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid API public rate: %w", err)
	}

	apiRoomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid API rooms rate: %w", err)
	}

	apiMessagesRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIMessages)
	if err != nil {
		return nil, fmt.Errorf("invalid API messages rate: %w", err)
	}

	wsConnectRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWSConnect)
	if err != nil {
		return nil, fmt.Errorf("invalid WS connect rate: %w", err)
	}

	wsAnswerRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWSAnswer)
	if err != nil {
		return nil, fmt.Errorf("invalid WS answer rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "trivion:limiter:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using memory store (pub/sub disabled or unavailable)")
	}

	return &RateLimiter{
		apiGlobal:   limiter.New(store, apiGlobalRate),
		apiPublic:   limiter.New(store, apiPublicRate),
		apiRooms:    limiter.New(store, apiRoomsRate),
		apiMessages: limiter.New(store, apiMessagesRate),
		wsConnect:   limiter.New(store, wsConnectRate),
		wsAnswer:    limiter.New(store, wsAnswerRate),
		store:       store,
		redisClient: redisClient,
		validator:   validator,
	}, nil
}

// identify resolves the rate limit key and bucket for an incoming request:
// a validated bearer token keys on member identity, otherwise on client IP.
func (rl *RateLimiter) identify(c *gin.Context) (key string, limitType string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || rl.validator == nil {
		return c.ClientIP(), "ip"
	}

	const prefix = "Bearer "
	if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
		return c.ClientIP(), "ip"
	}

	claims, err := rl.validator.ValidateToken(authHeader[len(prefix):])
	if err != nil {
		return c.ClientIP(), "ip"
	}

	return claims.Subject, "member"
}

// GlobalMiddleware returns a Gin middleware that enforces global rate limits,
// keyed by member identity when a valid token is presented, by IP otherwise.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, limitType := rl.identify(c)

		var limiterInstance *limiter.Limiter
		if limitType == "member" {
			limiterInstance = rl.apiGlobal
		} else {
			limiterInstance = rl.apiPublic
		}

		ctx := c.Request.Context()
		limiterContext, err := limiterInstance.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(limiterContext.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(limiterContext.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(limiterContext.Reset, 10))

		if limiterContext.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(limiterContext.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": limiterContext.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// MiddlewareForEndpoint returns a Gin middleware that enforces a specific
// endpoint rate limit ("rooms" for question creation, "messages" for REST
// game control).
func (rl *RateLimiter) MiddlewareForEndpoint(endpointType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var limiterInstance *limiter.Limiter
		switch endpointType {
		case "rooms":
			limiterInstance = rl.apiRooms
		case "messages":
			limiterInstance = rl.apiMessages
		default:
			limiterInstance = rl.apiGlobal
		}

		key, _ := rl.identify(c)

		ctx := c.Request.Context()
		limiterContext, err := limiterInstance.Get(ctx, key)
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		if limiterContext.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), endpointType).Inc()
			c.Header("X-RateLimit-Retry-After", strconv.FormatInt(limiterContext.Reset, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": limiterContext.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// CheckWebSocket enforces the per-IP connection rate limit before a socket
// is upgraded. Returns true if the connection should proceed.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	ipContext, err := rl.wsConnect.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "ws rate limiter store failed (ip)", zap.Error(err))
		return true
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections from this ip"})
		return false
	}

	return true
}

// CheckWebSocketAnswer enforces the per-member answer submission rate limit.
// Call this from the socket handler before applying an answer tag.
func (rl *RateLimiter) CheckWebSocketAnswer(ctx context.Context, memberID string) error {
	memberContext, err := rl.wsAnswer.Get(ctx, memberID)
	if err != nil {
		logging.Error(ctx, "ws rate limiter store failed (member)", zap.Error(err))
		return nil
	}

	if memberContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_answer", "member").Inc()
		return fmt.Errorf("rate limit exceeded for member")
	}

	return nil
}

// StandardMiddleware exposes the stock ulule/limiter middleware for callers
// that want plain IP-based limiting without the member/IP split above.
func (rl *RateLimiter) StandardMiddleware() gin.HandlerFunc {
	return mgin.NewMiddleware(rl.apiPublic)
}
