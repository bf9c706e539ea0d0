package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/hostguard/internal/metrics"
)

var _ = Describe("PrometheusRecorder", func() {
	var (
		reg      *prometheus.Registry
		recorder metrics.Recorder
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
	})

	// scrape renders the registry the way the /metrics endpoint would.
	scrape := func() string {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
		return rec.Body.String()
	}

	It("should expose attempted calls with host and code labels", func() {
		recorder.ObserveCall("api.example.com", 200, 50*time.Millisecond)
		recorder.ObserveCall("api.example.com", 200, 70*time.Millisecond)
		recorder.ObserveCall("api.example.com", 502, 10*time.Millisecond)

		body := scrape()
		Expect(body).To(ContainSubstring(`hostguard_upstream_calls_total{code="200",host="api.example.com"} 2`))
		Expect(body).To(ContainSubstring(`hostguard_upstream_calls_total{code="502",host="api.example.com"} 1`))
		Expect(body).To(ContainSubstring(`hostguard_upstream_call_duration_seconds_count{host="api.example.com"} 3`))
	})

	It("should expose rejections", func() {
		recorder.IncRejection("api.example.com")

		Expect(scrape()).To(ContainSubstring(`hostguard_circuit_rejections_total{host="api.example.com"} 1`))
	})

	It("should expose state changes and the state gauge", func() {
		recorder.ObserveStateChange("api.example.com", "OPEN")

		body := scrape()
		Expect(body).To(ContainSubstring(`hostguard_circuit_state_changes_total{host="api.example.com",state="OPEN"} 1`))
		Expect(body).To(ContainSubstring(`hostguard_circuit_state{host="api.example.com"} 1`))

		recorder.ObserveStateChange("api.example.com", "HALF-OPEN")
		Expect(scrape()).To(ContainSubstring(`hostguard_circuit_state{host="api.example.com"} 2`))
	})

	It("should expose probe health as a gauge", func() {
		recorder.ObserveProbe("api.example.com", true)
		Expect(scrape()).To(ContainSubstring(`hostguard_upstream_probe_healthy{host="api.example.com"} 1`))

		recorder.ObserveProbe("api.example.com", false)
		Expect(scrape()).To(ContainSubstring(`hostguard_upstream_probe_healthy{host="api.example.com"} 0`))
	})
})

var _ = Describe("NopRecorder", func() {
	It("should accept measurements without side effects", func() {
		recorder := metrics.NewNopRecorder()
		recorder.ObserveCall("api.example.com", 200, time.Millisecond)
		recorder.IncRejection("api.example.com")
		recorder.ObserveStateChange("api.example.com", "OPEN")
		recorder.ObserveProbe("api.example.com", false)
	})
})
