package metrics

import (
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/audit"

	"github.com/prometheus/client_golang/prometheus"
)

func benchDecision() *audit.Decision {
	return &audit.Decision{
		Component:   audit.ComponentPipeline,
		Outcome:     audit.OutcomeAdmit,
		RuleID:      "ci-all-green",
		Stage:       "ci_running",
		TargetStage: "ci_passed",
	}
}

func Benchmark_Collector_ObserveDecision(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	d := benchDecision()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.ObserveDecision(d)
	}
}

func Benchmark_Collector_ObserveDecision_Parallel(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	d := benchDecision()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			collector.ObserveDecision(d)
		}
	})
}

func Benchmark_Collector_RecordHTTPRequest(b *testing.B) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		collector.RecordHTTPRequest("POST", "/v1/events/stage", 200, 2*time.Millisecond)
	}
}

func Benchmark_CardinalityLimiter_Allow(b *testing.B) {
	limiter := NewCardinalityLimiter(1000)
	limiter.Allow("deploy")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		limiter.Allow("deploy")
	}
}
