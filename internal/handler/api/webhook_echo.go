package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	"github.com/mack4pf/telegram-automated-signal/internal/middleware"
	xhttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
	xlogger "github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

const maxWebhookBody = 64 << 10

// Dispatcher hands an admitted alert to background processing. It must not
// block on downstream work.
type Dispatcher interface {
	Dispatch(alert *models.Alert)
}

// HealthChecker reports state store connectivity.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// WebhookEchoHandler serves the alert webhook and the health endpoints.
type WebhookEchoHandler struct {
	logger     *xlogger.Logger
	admission  *middleware.Admission
	dispatcher Dispatcher
	health     HealthChecker
	startedAt  time.Time
	now        func() time.Time
}

func NewWebhookEchoHandler(logger *xlogger.Logger, admission *middleware.Admission, dispatcher Dispatcher, health HealthChecker) *WebhookEchoHandler {
	return &WebhookEchoHandler{
		logger:     logger,
		admission:  admission,
		dispatcher: dispatcher,
		health:     health,
		startedAt:  time.Now(),
		now:        time.Now,
	}
}

func (h *WebhookEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/webhook", h.Webhook)
	e.POST("/webhook/:strategy", h.Webhook)
}

// Webhook admits the alert, acknowledges it and dispatches it. Nothing that
// happens after the acknowledgment reaches the caller.
func (h *WebhookEchoHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InvalidPayloadError("", "unreadable body").WithError(err))
	}

	token := c.QueryParam("token")
	if token == "" {
		token = c.Request().Header.Get("X-Webhook-Secret")
	}

	alert, rej := h.admission.Admit(c.Request().Context(), middleware.Request{
		Body:         body,
		PathStrategy: c.Param("strategy"),
		Origin:       c.RealIP(),
		Token:        token,
	})
	if rej != nil {
		return xhttp.AppErrorResponse(c, rej)
	}

	h.logger.Info("webhook received",
		xlogger.String("strategy", alert.Strategy),
		xlogger.String("ticker", alert.Ticker),
		xlogger.String("signal", alert.Signal))

	if err := xhttp.Acknowledge(c); err != nil {
		h.logger.Warn("webhook ack write failed", xlogger.Error(err))
	}
	h.dispatcher.Dispatch(alert)
	return nil
}

func (h *WebhookEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	now := h.now()
	return c.JSON(http.StatusOK, xhttp.HealthResponse{
		Status:         "healthy",
		RedisConnected: h.health != nil && h.health.Healthy(ctx),
		UptimeSeconds:  now.Sub(h.startedAt).Seconds(),
		Timestamp:      now.UTC(),
	})
}

func (h *WebhookEchoHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, xhttp.ServiceInfo{
		Service: "telegram-automated-signal",
		Status:  "running",
		Webhook: "/webhook/:strategy",
	})
}
