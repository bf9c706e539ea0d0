package metrics

import (
	"sort"
	"sync"
	"time"
)

// Metrics aggregates per-host traffic seen through the circuit breakers.
type Metrics struct {
	mutex         sync.RWMutex
	calls         map[string]int64
	rejections    map[string]int64
	transitions   map[string]int64
	lastStates    map[string]string
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	probeHealthy  map[string]bool
	startTime     time.Time
}

// Snapshot is the JSON view of the aggregated traffic.
type Snapshot struct {
	TotalCalls      int64                  `json:"total_calls"`
	TotalRejections int64                  `json:"total_rejections"`
	Uptime          time.Duration          `json:"uptime"`
	Hosts           map[string]HostMetrics `json:"hosts"`
}

// HostMetrics is the per-host slice of a Snapshot.
type HostMetrics struct {
	Calls          int64         `json:"calls"`
	Rejections     int64         `json:"rejections"`
	Transitions    int64         `json:"transitions"`
	LastTransition string        `json:"last_transition,omitempty"`
	ProbeHealthy   bool          `json:"probe_healthy"`
	AvgResponse    time.Duration `json:"avg_response"`
	P50Response    time.Duration `json:"p50_response"`
	P95Response    time.Duration `json:"p95_response"`
	P99Response    time.Duration `json:"p99_response"`
	StatusCodes    map[int]int64 `json:"status_codes"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		calls:         make(map[string]int64),
		rejections:    make(map[string]int64),
		transitions:   make(map[string]int64),
		lastStates:    make(map[string]string),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		probeHealthy:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

// RecordCall stores the outcome of one attempted upstream call.
func (m *Metrics) RecordCall(host string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.calls[host]++
	m.responseTimes[host] = append(m.responseTimes[host], duration)

	// Keep a bounded sample so percentiles stay cheap.
	if len(m.responseTimes[host]) > 1000 {
		m.responseTimes[host] = m.responseTimes[host][1:]
	}

	if m.statusCodes[host] == nil {
		m.statusCodes[host] = make(map[int]int64)
	}
	m.statusCodes[host][statusCode]++
}

// RecordRejection counts a call the breaker refused to attempt.
func (m *Metrics) RecordRejection(host string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejections[host]++
}

// RecordStateChange counts a breaker transition for the host.
func (m *Metrics) RecordStateChange(host, from, to string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.transitions[host]++
	m.lastStates[host] = from + "->" + to
}

// RecordProbe stores the result of the latest health probe for the host.
func (m *Metrics) RecordProbe(host string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.probeHealthy[host] = healthy
}

// Snapshot returns an aggregated copy of everything recorded so far.
func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime: time.Since(m.startTime),
		Hosts:  make(map[string]HostMetrics),
	}

	allHosts := make(map[string]bool)
	for host := range m.calls {
		allHosts[host] = true
	}
	for host := range m.rejections {
		allHosts[host] = true
	}
	for host := range m.transitions {
		allHosts[host] = true
	}
	for host := range m.probeHealthy {
		allHosts[host] = true
	}

	for host := range allHosts {
		snap.TotalCalls += m.calls[host]
		snap.TotalRejections += m.rejections[host]

		hm := HostMetrics{
			Calls:          m.calls[host],
			Rejections:     m.rejections[host],
			Transitions:    m.transitions[host],
			LastTransition: m.lastStates[host],
			ProbeHealthy:   m.probeHealthy[host],
		}

		if codes := m.statusCodes[host]; len(codes) > 0 {
			hm.StatusCodes = make(map[int]int64, len(codes))
			for code, count := range codes {
				hm.StatusCodes[code] = count
			}
		}

		durations := m.responseTimes[host]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			hm.AvgResponse = average(sorted)
			hm.P50Response = percentile(sorted, 0.50)
			hm.P95Response = percentile(sorted, 0.95)
			hm.P99Response = percentile(sorted, 0.99)
		}

		snap.Hosts[host] = hm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
