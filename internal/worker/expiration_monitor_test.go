package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/digsafe/permit-service/internal/config"
	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/events"
	"github.com/digsafe/permit-service/internal/observability"
	"github.com/digsafe/permit-service/internal/repository"
)

// eventRecorder captures published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event{}, r.events...)
}

func alertsFor(ticketID string) repository.AlertFilter {
	return repository.AlertFilter{TicketID: &ticketID}
}

func newTestMonitor(t *testing.T, tickets *memTicketRepo, alerts *memAlertRepo, now time.Time) (*ExpirationMonitor, *eventRecorder) {
	t.Helper()
	recorder := &eventRecorder{}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventTicketExpired, recorder.Handle)
	monitor := NewExpirationMonitor(config.MonitorConfig{}, MonitorDependencies{
		TicketRepo: tickets,
		AlertRepo:  alerts,
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(),
		Logger:     zap.NewNop(),
		Clock:      func() time.Time { return now },
	})
	return monitor, recorder
}

func openTicket(id, number string, expiration time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:             id,
		TicketNumber:   number,
		Organization:   "Acme Excavation",
		Status:         domain.TicketStatusOpen,
		ExpirationDate: expiration,
		AssignedTo:     "user-1",
	}
}

func TestRunOnceExpiresOverdueTickets(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tickets := newMemTicketRepo(
		openTicket("t1", "TKT-2024-0001", now.Add(-2*time.Hour)),
		openTicket("t2", "TKT-2024-0002", now.Add(30*24*time.Hour)),
	)
	alerts := newMemAlertRepo()
	monitor, recorder := newTestMonitor(t, tickets, alerts, now)

	result, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.TicketsExpired)

	stored, err := tickets.GetByID(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusExpired, stored.Status)

	untouched, err := tickets.GetByID(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, untouched.Status)

	created, err := alerts.ListWithFilter(context.Background(), alertsFor("t1"))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, domain.AlertTypeExpired, created[0].Type)
	assert.Equal(t, domain.AlertSeverityCritical, created[0].Severity)

	require.Len(t, recorder.Events(), 1)
	assert.Equal(t, events.EventTicketExpired, recorder.Events()[0].Type)
	assert.True(t, recorder.Events()[0].Actor.System)
}

func TestRunOnceAlertsExpiringTickets(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tickets := newMemTicketRepo(
		openTicket("t1", "TKT-2024-0001", now.Add(30*time.Hour)),
		openTicket("t2", "TKT-2024-0002", now.Add(10*time.Hour)),
		openTicket("t3", "TKT-2024-0003", now.Add(90*24*time.Hour)),
	)
	alerts := newMemAlertRepo()
	monitor, _ := newTestMonitor(t, tickets, alerts, now)

	result, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExpiringSoonAlerts)
	assert.Equal(t, 0, result.TicketsExpired)

	medium, err := alerts.ListWithFilter(context.Background(), alertsFor("t1"))
	require.NoError(t, err)
	require.Len(t, medium, 1)
	assert.Equal(t, domain.AlertSeverityMedium, medium[0].Severity)
	assert.Equal(t, "Ticket will expire in 2 days", medium[0].Message)

	high, err := alerts.ListWithFilter(context.Background(), alertsFor("t2"))
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, domain.AlertSeverityHigh, high[0].Severity)
	assert.Equal(t, "Ticket will expire in 10 hours", high[0].Message)

	far, err := alerts.ListWithFilter(context.Background(), alertsFor("t3"))
	require.NoError(t, err)
	assert.Empty(t, far)
}

func TestRunOnceDeduplicatesExpiringAlerts(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tickets := newMemTicketRepo(openTicket("t1", "TKT-2024-0001", now.Add(30*time.Hour)))
	alerts := newMemAlertRepo()
	monitor, _ := newTestMonitor(t, tickets, alerts, now)

	_, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	result, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExpiringSoonAlerts)

	created, err := alerts.ListWithFilter(context.Background(), alertsFor("t1"))
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestRunOnceRetriesFailedWriteOnce(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tickets := newMemTicketRepo(openTicket("t1", "TKT-2024-0001", now.Add(-time.Hour)))
	tickets.failNext = 1
	alerts := newMemAlertRepo()
	monitor, _ := newTestMonitor(t, tickets, alerts, now)

	result, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.TicketsExpired)
	assert.Equal(t, 2, tickets.updates)
}

func TestRunOnceSkipsConcurrentlyModifiedTicket(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tickets := newMemTicketRepo(openTicket("t1", "TKT-2024-0001", now.Add(-time.Hour)))
	// Simulate an interactive renewal racing the pass.
	tickets.conflictNext = 1
	alerts := newMemAlertRepo()
	monitor, _ := newTestMonitor(t, tickets, alerts, now)

	result, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.TicketsExpired)
	assert.Equal(t, 0, result.Failures)

	created, err := alerts.ListWithFilter(context.Background(), alertsFor("t1"))
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestRunOnceContinuesPastFailingTicket(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tickets := newMemTicketRepo(
		openTicket("t1", "TKT-2024-0001", now.Add(5*time.Hour)),
		openTicket("t2", "TKT-2024-0002", now.Add(6*time.Hour)),
	)
	alerts := newMemAlertRepo()
	alerts.failNext = 2
	monitor, _ := newTestMonitor(t, tickets, alerts, now)

	result, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failures)
	assert.Equal(t, 1, result.ExpiringSoonAlerts)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tickets := newMemTicketRepo(openTicket("t1", "TKT-2024-0001", now.Add(-time.Hour)))
	alerts := newMemAlertRepo()
	recorder := &eventRecorder{}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventTicketExpired, recorder.Handle)
	monitor := NewExpirationMonitor(config.MonitorConfig{IntervalMinutes: 60, RunOnStart: true}, MonitorDependencies{
		TicketRepo: tickets,
		AlertRepo:  alerts,
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(),
		Logger:     zap.NewNop(),
		Clock:      func() time.Time { return now },
	})

	monitor.Start(context.Background())
	assert.Eventually(t, func() bool {
		stored, err := tickets.GetByID(context.Background(), "t1")
		return err == nil && stored.Status == domain.TicketStatusExpired
	}, 2*time.Second, 10*time.Millisecond)
	monitor.Stop()
	monitor.Stop() // idempotent
}
