package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/digsafe/permit-service/internal/observability"
	"github.com/digsafe/permit-service/internal/worker"
	apperrors "github.com/digsafe/permit-service/pkg/util"
)

// MonitorHandler exposes the reconciliation engine to operators: a manual
// pass trigger and cumulative pass statistics.
type MonitorHandler struct {
	monitor *worker.ExpirationMonitor
	metrics *observability.Metrics
}

// NewMonitorHandler constructs handler.
func NewMonitorHandler(monitor *worker.ExpirationMonitor, metrics *observability.Metrics) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, metrics: metrics}
}

// TriggerPass POST /monitor/run. Runs one synchronous reconciliation pass.
func (h *MonitorHandler) TriggerPass(c *fiber.Ctx) error {
	result, err := h.monitor.RunOnce(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": result})
}

// Stats GET /monitor/stats.
func (h *MonitorHandler) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.MonitorStats()})
}
