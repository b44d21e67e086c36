package llmclient

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// callMetrics tracks per-provider call outcomes via OTel counters,
// grounded on the teacher's lazily-initialized aiMetrics instruments.
type callMetrics struct {
	once     sync.Once
	calls    metric.Int64Counter
	failures metric.Int64Counter
}

func newCallMetrics() *callMetrics {
	cm := &callMetrics{}
	cm.once.Do(cm.init)
	return cm
}

func (cm *callMetrics) init() {
	m := otel.Meter("github.com/foldhq/fold/llmclient")
	cm.calls, _ = m.Int64Counter("fold.llm.calls",
		metric.WithDescription("LLM provider calls attempted"))
	cm.failures, _ = m.Int64Counter("fold.llm.failures",
		metric.WithDescription("LLM provider calls that failed"))
}

func (cm *callMetrics) recordSuccess(provider, op string) {
	if cm.calls == nil {
		return
	}
	cm.calls.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("provider", provider), attribute.String("op", op), attribute.Bool("ok", true)))
}

func (cm *callMetrics) recordFailure(provider, op string) {
	if cm.failures == nil {
		return
	}
	cm.failures.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("provider", provider), attribute.String("op", op)))
}
