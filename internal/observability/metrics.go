package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for requests and the
// reconciliation engine.
type Metrics struct {
	mu             sync.Mutex
	requestCount   map[string]int64
	errorCount     map[string]int64
	monitorPasses  int64
	ticketsExpired int64
	alertsCreated  int64
	lastPassAt     time.Time
}

// MonitorSnapshot summarizes reconciliation activity since process start.
type MonitorSnapshot struct {
	Passes         int64     `json:"passes"`
	TicketsExpired int64     `json:"tickets_expired"`
	AlertsCreated  int64     `json:"alerts_created"`
	LastPassAt     time.Time `json:"last_pass_at"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordMonitorPass records the outcome of one reconciliation pass.
func (m *Metrics) RecordMonitorPass(expired, alerts int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitorPasses++
	m.ticketsExpired += int64(expired)
	m.alertsCreated += int64(alerts)
	m.lastPassAt = time.Now()
}

// MonitorStats returns a copy of the reconciliation counters.
func (m *Metrics) MonitorStats() MonitorSnapshot {
	if m == nil {
		return MonitorSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MonitorSnapshot{
		Passes:         m.monitorPasses,
		TicketsExpired: m.ticketsExpired,
		AlertsCreated:  m.alertsCreated,
		LastPassAt:     m.lastPassAt,
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
