package grpc

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultRequestTimeout = 10 * time.Second

// DefaultTimeout bounds requests that arrive without a deadline.
func DefaultTimeout(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// RateLimit sheds load above perSecond requests with the given burst.
// A non-positive rate disables limiting.
func RateLimit(perSecond float64, burst int, log *slog.Logger) grpc.UnaryServerInterceptor {
	if perSecond <= 0 {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	if burst <= 0 {
		burst = 1
	}
	if log == nil {
		log = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	log = log.With(slog.String("component", "grpc.ratelimit"))

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limiter.Allow() {
			log.Warn("request shed", slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return handler(ctx, req)
	}
}
