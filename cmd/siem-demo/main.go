// Command siem-demo exercises the circuit breaker against a simulated
// flaky SIEM backend and exposes breaker metrics on /metrics.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/siemguard/circuit-breaker/internal/circuitbreaker"
	"github.com/siemguard/circuit-breaker/internal/config"
	"github.com/siemguard/circuit-breaker/pkg/client"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfg.ConfigureLogging(); err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}

	metrics := circuitbreaker.NewMetrics(cfg.Metrics.Namespace)
	manager := circuitbreaker.NewManager(metrics)
	defer manager.CleanupAll()

	// Register breakers for every configured backend.
	for _, svc := range cfg.Services {
		if _, err := manager.CreateBreaker(svc.Name, svc.Breaker); err != nil {
			logrus.WithError(err).WithField("service", svc.Name).Fatal("invalid breaker config")
		}
	}

	backend := newFlakySIEM()
	defer backend.Close()

	// The demo backend gets aggressive thresholds so state changes show
	// up within a short run.
	siemClient, err := client.New("siem-demo", manager, circuitbreaker.Config{
		FailureThreshold:    3,
		MinimumThroughput:   3,
		SuccessThreshold:    2,
		Timeout:             5 * time.Second,
		HealthCheckInterval: time.Second,
	}, metrics)
	if err != nil {
		logrus.WithError(err).Fatal("failed to create SIEM client")
	}

	// Metrics and global status endpoints.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
			status := manager.GlobalStatus()
			fmt.Fprintf(w, "healthy: %.0f%% (closed %d / total %d)\n",
				status.HealthSummary.HealthyPercentage,
				status.Aggregate.Closed, status.Aggregate.Total)
		})
		logrus.WithField("address", cfg.Metrics.Address).Info("metrics server started")
		logrus.Fatal(http.ListenAndServe(cfg.Metrics.Address, mux))
	}()

	logrus.Info("starting demo: backend degrades, breaker opens, backend recovers, breaker closes")

	ctx := context.Background()
	for i := 1; i <= 50; i++ {
		resp, err := siemClient.Get(ctx, backend.URL+"/api/v1/search")

		log := logrus.WithFields(logrus.Fields{
			"request": i,
			"state":   siemClient.State().String(),
		})
		switch {
		case circuitbreaker.IsCircuitOpen(err):
			log.Warn("request rejected, circuit open")
		case err != nil:
			log.WithError(err).Error("request failed")
		default:
			log.WithField("status", resp.StatusCode).Info("request completed")
			resp.Body.Close()
		}

		time.Sleep(500 * time.Millisecond)
	}

	analysis := siemClient.CircuitBreaker().FailureAnalysis()
	perf := siemClient.CircuitBreaker().PerformanceAnalysis()
	logrus.WithFields(logrus.Fields{
		"total_failures":      analysis.TotalFailures,
		"most_common_failure": analysis.MostCommonFailure,
		"avg_response_time":   perf.ResponseTimes.Avg,
		"trend":               perf.Trend,
	}).Info("demo finished")
}

// newFlakySIEM simulates a SIEM search API whose health varies over
// time: heavy failures first, partial recovery, then healthy.
func newFlakySIEM() *httptest.Server {
	start := time.Now()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		elapsed := time.Since(start)
		var failureRate float64
		switch {
		case elapsed < 8*time.Second:
			failureRate = 0.8
		case elapsed < 16*time.Second:
			failureRate = 0.3
		default:
			failureRate = 0
		}

		if rand.Float64() < failureRate {
			http.Error(w, "search head unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"results":[],"count":0}`)
	}))
}
