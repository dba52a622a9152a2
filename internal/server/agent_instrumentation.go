package server

import (
	"context"
	"time"

	"github.com/pcoip-broker/broker/internal/broker/agentclient"
)

// timedAllocator wraps an agentclient.Allocator to record call latency,
// letting the metrics histogram observe the real outbound agent call
// without the protocol package needing to know metrics exist.
type timedAllocator struct {
	next    agentclient.Allocator
	metrics *metrics
}

func (t timedAllocator) Allocate(ctx context.Context, req agentclient.Request) (agentclient.Session, agentclient.Status, error) {
	start := time.Now()
	sess, status, err := t.next.Allocate(ctx, req)
	t.metrics.observeAgentCall(time.Since(start))
	return sess, status, err
}
