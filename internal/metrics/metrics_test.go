package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/hostguard/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("RecordCall", func() {
		It("should aggregate calls, durations and status codes per host", func() {
			m.RecordCall("api.example.com", 100*time.Millisecond, 200)
			m.RecordCall("api.example.com", 300*time.Millisecond, 502)
			m.RecordCall("db.example.com", 50*time.Millisecond, 200)

			snap := m.Snapshot()
			Expect(snap.TotalCalls).To(Equal(int64(3)))

			api := snap.Hosts["api.example.com"]
			Expect(api.Calls).To(Equal(int64(2)))
			Expect(api.AvgResponse).To(Equal(200 * time.Millisecond))
			Expect(api.StatusCodes[200]).To(Equal(int64(1)))
			Expect(api.StatusCodes[502]).To(Equal(int64(1)))
		})

		It("should compute response time percentiles", func() {
			for i := 1; i <= 100; i++ {
				m.RecordCall("api.example.com", time.Duration(i)*time.Millisecond, 200)
			}

			api := m.Snapshot().Hosts["api.example.com"]
			Expect(api.P50Response).To(Equal(51 * time.Millisecond))
			Expect(api.P95Response).To(Equal(96 * time.Millisecond))
			Expect(api.P99Response).To(Equal(100 * time.Millisecond))
		})

		It("should bound the response time sample", func() {
			for i := 0; i < 1500; i++ {
				m.RecordCall("api.example.com", time.Millisecond, 200)
			}

			api := m.Snapshot().Hosts["api.example.com"]
			Expect(api.Calls).To(Equal(int64(1500)))
			Expect(api.AvgResponse).To(Equal(time.Millisecond))
		})
	})

	Describe("RecordRejection", func() {
		It("should count rejections separately from calls", func() {
			m.RecordRejection("api.example.com")
			m.RecordRejection("api.example.com")

			snap := m.Snapshot()
			Expect(snap.TotalRejections).To(Equal(int64(2)))
			Expect(snap.Hosts["api.example.com"].Rejections).To(Equal(int64(2)))
			Expect(snap.Hosts["api.example.com"].Calls).To(BeZero())
		})
	})

	Describe("RecordStateChange", func() {
		It("should count transitions and remember the latest", func() {
			m.RecordStateChange("api.example.com", "CLOSED", "OPEN")
			m.RecordStateChange("api.example.com", "OPEN", "HALF-OPEN")

			api := m.Snapshot().Hosts["api.example.com"]
			Expect(api.Transitions).To(Equal(int64(2)))
			Expect(api.LastTransition).To(Equal("OPEN->HALF-OPEN"))
		})
	})

	Describe("RecordProbe", func() {
		It("should keep the latest probe result", func() {
			m.RecordProbe("api.example.com", false)
			m.RecordProbe("api.example.com", true)

			Expect(m.Snapshot().Hosts["api.example.com"].ProbeHealthy).To(BeTrue())
		})
	})

	Describe("Snapshot", func() {
		It("should include a host seen through any record type", func() {
			m.RecordCall("a.example.com", time.Millisecond, 200)
			m.RecordRejection("b.example.com")
			m.RecordStateChange("c.example.com", "CLOSED", "OPEN")
			m.RecordProbe("d.example.com", true)

			snap := m.Snapshot()
			Expect(snap.Hosts).To(HaveLen(4))
		})

		It("should report uptime", func() {
			Expect(m.Snapshot().Uptime).To(BeNumerically(">=", 0))
		})
	})
})
