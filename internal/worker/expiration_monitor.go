package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digsafe/permit-service/internal/config"
	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/events"
	"github.com/digsafe/permit-service/internal/observability"
	"github.com/digsafe/permit-service/internal/repository"
)

// ExpirationMonitor is the periodic reconciliation engine. Every interval
// it scans open tickets, emits deduplicated expiring-soon alerts for those
// inside the lookahead window, and transitions past-due tickets to Expired
// with a critical alert.
type ExpirationMonitor struct {
	tickets        repository.TicketRepository
	alerts         repository.AlertRepository
	dispatcher     events.Dispatcher
	metrics        *observability.Metrics
	logger         *zap.Logger
	interval       time.Duration
	expiringWindow time.Duration
	dedupWindow    time.Duration
	runOnStart     bool
	now            func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// MonitorDependencies bundles collaborators for the monitor.
type MonitorDependencies struct {
	TicketRepo repository.TicketRepository
	AlertRepo  repository.AlertRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	ExpiringSoonAlerts int `json:"expiring_soon_alerts"`
	TicketsExpired     int `json:"tickets_expired"`
	TicketsScanned     int `json:"tickets_scanned"`
	Failures           int `json:"failures"`
}

// NewExpirationMonitor creates the monitor.
func NewExpirationMonitor(cfg config.MonitorConfig, deps MonitorDependencies) *ExpirationMonitor {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirationMonitor{
		tickets:        deps.TicketRepo,
		alerts:         deps.AlertRepo,
		dispatcher:     deps.Dispatcher,
		metrics:        deps.Metrics,
		logger:         logger,
		interval:       cfg.Interval(),
		expiringWindow: cfg.ExpiringWindow(),
		dedupWindow:    cfg.DedupWindow(),
		runOnStart:     cfg.RunOnStart,
		now:            now,
		stopChan:       make(chan struct{}),
	}
}

// Start launches the background loop. One pass runs immediately, then one
// per interval until Stop or context cancellation.
func (m *ExpirationMonitor) Start(ctx context.Context) {
	m.logger.Info("starting expiration monitor",
		zap.Duration("interval", m.interval),
		zap.Duration("expiring_window", m.expiringWindow),
		zap.Duration("dedup_window", m.dedupWindow))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runLoop(ctx)
	}()
}

// Stop shuts the loop down and waits for an in-flight pass to finish.
func (m *ExpirationMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()
		m.logger.Info("expiration monitor stopped")
	})
}

func (m *ExpirationMonitor) runLoop(ctx context.Context) {
	if m.runOnStart {
		m.safeRun(ctx)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.safeRun(ctx)
		}
	}
}

// safeRun executes one pass; a failed pass never takes the process down,
// the next scheduled tick is the retry.
func (m *ExpirationMonitor) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("expiration pass panicked", zap.Any("panic", r))
		}
	}()

	start := m.now()
	result, err := m.RunOnce(ctx)
	if err != nil {
		m.logger.Error("expiration pass completed with errors",
			zap.Error(err),
			zap.Duration("duration", m.now().Sub(start)))
		return
	}
	m.logger.Info("expiration pass completed",
		zap.Int("tickets_scanned", result.TicketsScanned),
		zap.Int("expiring_soon_alerts", result.ExpiringSoonAlerts),
		zap.Int("tickets_expired", result.TicketsExpired),
		zap.Duration("duration", m.now().Sub(start)))
}

// RunOnce executes one synchronous reconciliation pass: expiring-soon
// detection first, then hard expiration. Per-ticket failures are logged
// and skipped; they never abort the batch.
func (m *ExpirationMonitor) RunOnce(ctx context.Context) (PassResult, error) {
	var result PassResult
	var errs []error

	if err := m.checkExpiringTickets(ctx, &result); err != nil {
		errs = append(errs, err)
	}
	if err := m.expireTickets(ctx, &result); err != nil {
		errs = append(errs, err)
	}

	if m.metrics != nil {
		m.metrics.RecordMonitorPass(result.TicketsExpired, result.ExpiringSoonAlerts+result.TicketsExpired)
	}
	return result, errors.Join(errs...)
}

// checkExpiringTickets is Step A: open tickets due inside the lookahead
// window get at most one expiring_soon alert per dedup window.
func (m *ExpirationMonitor) checkExpiringTickets(ctx context.Context, result *PassResult) error {
	now := m.now()
	expiring, err := m.tickets.FindExpiringSoon(ctx, now, m.expiringWindow)
	if err != nil {
		return err
	}
	result.TicketsScanned += len(expiring)

	for i := range expiring {
		ticket := &expiring[i]
		var created bool
		err := m.withRetry(func() error {
			var alertErr error
			created, alertErr = m.alertExpiringTicket(ctx, ticket, now)
			return alertErr
		})
		if err != nil {
			result.Failures++
			m.logger.Warn("failed to process expiring ticket",
				zap.String("ticket_number", ticket.TicketNumber),
				zap.Error(err))
			continue
		}
		if created {
			result.ExpiringSoonAlerts++
		}
	}
	return nil
}

func (m *ExpirationMonitor) alertExpiringTicket(ctx context.Context, ticket *domain.Ticket, now time.Time) (bool, error) {
	recent, err := m.alerts.HasRecentExpiringAlert(ctx, ticket.ID, now.Add(-m.dedupWindow))
	if err != nil {
		return false, err
	}
	if recent {
		return false, nil
	}

	hours := ticket.HoursUntilExpiration(now)
	alert := domain.NewExpirationAlert(ticket.ID, hours)
	if err := m.alerts.Create(ctx, alert); err != nil {
		return false, err
	}

	m.logger.Info("expiring-soon alert created",
		zap.String("ticket_number", ticket.TicketNumber),
		zap.Float64("hours_until_expiration", hours),
		zap.String("severity", string(alert.Severity)))
	return true, nil
}

// expireTickets is Step B: every open ticket strictly past its deadline is
// flipped to Expired, then unconditionally alerted. The state write comes
// first: an expired-but-unalerted ticket is more benign than an alerted
// ticket that never expired.
func (m *ExpirationMonitor) expireTickets(ctx context.Context, result *PassResult) error {
	now := m.now()
	expired, err := m.tickets.FindExpired(ctx, now)
	if err != nil {
		return err
	}
	result.TicketsScanned += len(expired)

	for i := range expired {
		ticket := &expired[i]
		if err := m.expireOne(ctx, ticket); err != nil {
			if errors.Is(err, repository.ErrVersionConflict) {
				// Someone renewed or closed the ticket mid-pass; the next
				// pass re-evaluates it from fresh state.
				m.logger.Info("skipping concurrently modified ticket",
					zap.String("ticket_number", ticket.TicketNumber))
				continue
			}
			result.Failures++
			m.logger.Warn("failed to expire ticket",
				zap.String("ticket_number", ticket.TicketNumber),
				zap.Error(err))
			continue
		}
		result.TicketsExpired++
	}
	return nil
}

func (m *ExpirationMonitor) expireOne(ctx context.Context, ticket *domain.Ticket) error {
	ticket.Expire()
	err := m.withRetry(func() error {
		return m.tickets.Update(ctx, ticket)
	})
	if err != nil {
		return err
	}

	m.logger.Warn("ticket automatically expired",
		zap.String("ticket_number", ticket.TicketNumber),
		zap.Time("expiration_date", ticket.ExpirationDate))

	alert := domain.NewExpirationAlert(ticket.ID, 0)
	if err := m.alerts.Create(ctx, alert); err != nil {
		// Accepted drift: the ticket stays Expired without its alert
		// rather than rolling back or re-running the transition.
		m.logger.Error("ticket expired but alert creation failed",
			zap.String("ticket_number", ticket.TicketNumber),
			zap.Error(err))
	}

	m.publishExpired(ctx, ticket)
	return nil
}

// withRetry retries a store operation once; version conflicts are not
// retried since the next pass reconsiders the ticket anyway.
func (m *ExpirationMonitor) withRetry(fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, repository.ErrVersionConflict) {
		return err
	}
	return fn()
}

func (m *ExpirationMonitor) publishExpired(ctx context.Context, ticket *domain.Ticket) {
	if m.dispatcher == nil {
		return
	}
	_ = m.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketExpired,
		TicketID:  ticket.ID,
		Actor:     events.SystemActor(),
		Timestamp: m.now(),
		Payload: events.TicketExpiredPayload{
			TicketNumber:   ticket.TicketNumber,
			ExpirationDate: ticket.ExpirationDate,
		},
	})
}
