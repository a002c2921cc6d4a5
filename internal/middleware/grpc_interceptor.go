package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/siemguard/circuit-breaker/internal/circuitbreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCInterceptorConfig configures the gRPC interceptors
type GRPCInterceptorConfig struct {
	// CircuitBreaker to use
	Breaker *circuitbreaker.CircuitBreaker

	// Metrics for recording request stats
	Metrics *circuitbreaker.Metrics

	// IsSuccessful determines if an error is considered successful
	// Defaults to: nil error or client-side status codes
	IsSuccessful func(err error) bool
}

// UnaryClientInterceptor returns a gRPC client interceptor that wraps
// calls to a SIEM backend with circuit breaker protection
func UnaryClientInterceptor(config GRPCInterceptorConfig) grpc.UnaryClientInterceptor {
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultGRPCIsSuccessful
	}
	classifier := circuitbreaker.DefaultClassifier()

	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		err := config.Breaker.Do(ctx, func(ctx context.Context) error {
			err := invoker(ctx, method, req, reply, cc, opts...)
			if !config.IsSuccessful(err) {
				return err
			}
			return nil
		})

		return translateGRPCResult(config, classifier, err)
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor
func StreamClientInterceptor(config GRPCInterceptorConfig) grpc.StreamClientInterceptor {
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultGRPCIsSuccessful
	}
	classifier := circuitbreaker.DefaultClassifier()

	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		var stream grpc.ClientStream

		err := config.Breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			stream, err = streamer(ctx, desc, cc, method, opts...)
			if !config.IsSuccessful(err) {
				return err
			}
			return nil
		})

		if err := translateGRPCResult(config, classifier, err); err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// translateGRPCResult records metrics and converts circuit-open
// rejections into an Unavailable status carrying the retry hint.
func translateGRPCResult(config GRPCInterceptorConfig, classifier *circuitbreaker.Classifier, err error) error {
	name := config.Breaker.Name()

	var openErr *circuitbreaker.CircuitOpenError
	if errors.As(err, &openErr) {
		if config.Metrics != nil {
			config.Metrics.RecordRejection(name)
		}
		return status.Error(codes.Unavailable,
			fmt.Sprintf("circuit breaker is open, retry in %s", openErr.RetryAfter))
	}

	if config.Metrics != nil {
		if err == nil {
			config.Metrics.RecordSuccess(name)
		} else {
			config.Metrics.RecordFailure(name, classifier.Classify(err))
		}
	}

	return err
}

// UnaryServerInterceptor returns a gRPC server interceptor that shields
// handlers whose work depends on a protected backend
func UnaryServerInterceptor(config GRPCInterceptorConfig) grpc.UnaryServerInterceptor {
	classifier := circuitbreaker.DefaultClassifier()

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		var resp interface{}
		err := config.Breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			resp, err = handler(ctx, req)
			return err
		})

		if err := translateGRPCResult(config, classifier, err); err != nil {
			return nil, err
		}
		return resp, nil
	}
}

// defaultGRPCIsSuccessful considers nil errors and certain codes as successful
func defaultGRPCIsSuccessful(err error) bool {
	if err == nil {
		return true
	}

	// Get gRPC status code
	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	// These codes indicate client errors, not service failures
	switch st.Code() {
	case codes.OK:
		return true
	case codes.Canceled:
		return true // Client cancelled, not a service failure
	case codes.InvalidArgument:
		return true // Client error
	case codes.NotFound:
		return true // Resource not found, not a service failure
	case codes.AlreadyExists:
		return true // Client error
	case codes.PermissionDenied:
		return true // Auth error
	case codes.Unauthenticated:
		return true // Auth error
	default:
		return false // Server errors
	}
}
