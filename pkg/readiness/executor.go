package readiness

import (
	"context"
	"time"

	"github.com/cuemby/glide/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCExecutor implements Executor by watching a target's health over the
// standard gRPC health-checking protocol (grpc.health.v1.Health/Watch):
// each ReadinessCheckSpec names a Target address and a Service name, and
// the executor treats SERVING as ready, everything else as not-ready.
type GRPCExecutor struct {
	dialOptions []grpc.DialOption
}

// NewGRPCExecutor creates an executor. Callers running against a TLS
// endpoint should pass grpc.WithTransportCredentials with a real
// credentials.TransportCredentials; called with no options it dials
// insecurely, suitable only for the in-cluster demo driver.
func NewGRPCExecutor(dialOptions ...grpc.DialOption) *GRPCExecutor {
	if len(dialOptions) == 0 {
		dialOptions = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &GRPCExecutor{dialOptions: dialOptions}
}

func (e *GRPCExecutor) Execute(ctx context.Context, spec types.ReadinessCheckSpec) (<-chan Result, <-chan error) {
	results := make(chan Result, 8)
	done := make(chan error, 1)

	go func() {
		defer close(results)

		conn, err := grpc.NewClient(spec.Target, e.dialOptions...)
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()

		client := grpc_health_v1.NewHealthClient(conn)
		stream, err := client.Watch(ctx, &grpc_health_v1.HealthCheckRequest{Service: spec.Service})
		if err != nil {
			done <- err
			return
		}

		for {
			resp, err := stream.Recv()
			if err != nil {
				if ctx.Err() != nil {
					done <- nil // cancelled by caller, not a failure
					return
				}
				done <- err
				return
			}

			results <- Result{
				Ready:     resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING,
				Message:   resp.GetStatus().String(),
				CheckedAt: time.Now(),
			}
		}
	}()

	return results, done
}
