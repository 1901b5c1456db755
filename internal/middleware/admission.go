package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/internal/service/ratelimit"
	"github.com/mack4pf/telegram-automated-signal/pkg/config"
	apphttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
	"github.com/mack4pf/telegram-automated-signal/pkg/util"
)

// Request is the transport-independent view of an inbound webhook call.
type Request struct {
	Body []byte
	// PathStrategy is the optional /webhook/:strategy segment.
	PathStrategy string
	Origin       string
	// Token is the secret taken from the query string or header.
	Token string
}

// AdmissionConfig holds the admission rules.
type AdmissionConfig struct {
	DefaultStrategy string
	LegacyPath      string
	Secret          string
	AllowedIPs      []string
}

type AdmissionOption func(*Admission)

// WithAdmissionConfig replaces the admission rules.
func WithAdmissionConfig(cfg AdmissionConfig) AdmissionOption {
	return func(a *Admission) {
		a.cfg = cfg
	}
}

// WithAdmissionClock overrides the receive timestamp source.
func WithAdmissionClock(now func() time.Time) AdmissionOption {
	return func(a *Admission) {
		if now != nil {
			a.now = now
		}
	}
}

// Admission validates, normalizes and rate limits webhook calls before they
// are acknowledged. A rejection carries the HTTP status the caller sees.
type Admission struct {
	logger  *logger.Logger
	limiter ratelimit.Limiter
	metrics domrepo.Metrics
	cfg     AdmissionConfig
	now     func() time.Time

	allowIPs  map[string]struct{}
	allowNets []*net.IPNet
}

// NewAdmission creates the gate. limiter is keyed by "<origin>:<TICKER>".
func NewAdmission(lgr *logger.Logger, limiter ratelimit.Limiter, metrics domrepo.Metrics, opts ...AdmissionOption) *Admission {
	a := &Admission{
		logger:  lgr,
		limiter: limiter,
		metrics: metrics,
		cfg: AdmissionConfig{
			DefaultStrategy: "vip",
			LegacyPath:      "tradingview",
		},
		now:      time.Now,
		allowIPs: make(map[string]struct{}),
	}
	if a.metrics == nil {
		a.metrics = domrepo.NopMetrics{}
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cfg.DefaultStrategy = models.NormalizeStrategy(a.cfg.DefaultStrategy)
	a.cfg.LegacyPath = models.NormalizeStrategy(a.cfg.LegacyPath)

	for _, entry := range a.cfg.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, n, err := net.ParseCIDR(entry); err == nil {
			a.allowNets = append(a.allowNets, n)
			continue
		}
		a.allowIPs[entry] = struct{}{}
	}
	return a
}

// Admit returns the normalized alert or the rejection to send back.
func (a *Admission) Admit(ctx context.Context, req Request) (*models.Alert, *apphttp.AppError) {
	if !a.ipAllowed(req.Origin) {
		return nil, a.reject("forbidden", apphttp.ForbiddenError("origin not allowed"))
	}

	body := bytes.TrimSpace(req.Body)
	if len(body) == 0 || body[0] != '{' {
		return nil, a.reject("invalid_payload", apphttp.InvalidPayloadError("", "body must be a JSON object"))
	}

	var wr models.WebhookRequest
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, a.reject("invalid_payload",
			apphttp.InvalidPayloadError("", "malformed JSON body").WithError(err))
	}

	if !a.secretMatches(req.Token, wr.Secret) {
		return nil, a.reject("unauthorized", apphttp.UnauthorizedError("invalid webhook secret"))
	}

	if verrs := apphttp.ValidateStruct(ctx, &wr); len(verrs) > 0 {
		first := verrs[0]
		return nil, a.reject("invalid_payload", apphttp.InvalidPayloadError(first.Field, first.Message))
	}

	pathStrategy := models.NormalizeStrategy(req.PathStrategy)
	if strings.TrimSpace(wr.Strategy) == "" && wr.ChatID == "" && pathStrategy == "" {
		return nil, a.reject("invalid_payload",
			apphttp.InvalidPayloadError("strategy", "a routing identifier (strategy, chat_id or path) is required"))
	}

	strategy := a.resolveStrategy(wr.Strategy, pathStrategy)
	if !config.ValidStrategy(strategy) {
		return nil, a.reject("invalid_strategy",
			apphttp.InvalidPayloadError("strategy", fmt.Sprintf("%v: %q", models.ErrInvalidStrategy, strategy)))
	}

	ticker := models.NormalizeTicker(wr.Ticker)
	if ticker == "" {
		return nil, a.reject("invalid_payload", apphttp.InvalidPayloadError("ticker", "ticker is required"))
	}
	signal := strings.TrimSpace(wr.Signal)
	if signal == "" {
		return nil, a.reject("invalid_payload", apphttp.InvalidPayloadError("signal", "signal is required"))
	}

	allowed, err := a.limiter.Allow(ctx, req.Origin+":"+ticker)
	if err != nil {
		a.logger.Warn("rate limiter unavailable, admitting",
			logger.String("origin", req.Origin), logger.String("ticker", ticker), logger.Error(err))
	}
	if !allowed {
		return nil, a.reject("rate_limited", apphttp.TooManyRequestsError(models.ErrRateLimited.Error()))
	}

	return &models.Alert{
		Ticker:     ticker,
		Signal:     signal,
		Price:      parsePrice(string(wr.Price)),
		Strategy:   strategy,
		Origin:     req.Origin,
		ChatID:     wr.ChatID.String(),
		Timeframe:  strings.TrimSpace(wr.Timeframe),
		Expiry:     time.Duration(util.ParseIntDefault(wr.Time.String(), 0)) * time.Second,
		ReceivedAt: a.now(),
	}, nil
}

// resolveStrategy applies body > path > default. The legacy path segment
// addresses the default tenant.
func (a *Admission) resolveStrategy(body, path string) string {
	if s := models.NormalizeStrategy(body); s != "" {
		return s
	}
	if path != "" && path != a.cfg.LegacyPath {
		return path
	}
	return a.cfg.DefaultStrategy
}

func (a *Admission) secretMatches(token, bodySecret string) bool {
	if a.cfg.Secret == "" {
		return true
	}
	got := util.FirstNonEmpty(token, bodySecret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.cfg.Secret)) == 1
}

func (a *Admission) ipAllowed(origin string) bool {
	if len(a.allowIPs) == 0 && len(a.allowNets) == 0 {
		return true
	}
	if _, ok := a.allowIPs[origin]; ok {
		return true
	}
	ip := net.ParseIP(origin)
	if ip == nil {
		return false
	}
	for _, n := range a.allowNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (a *Admission) reject(reason string, err *apphttp.AppError) *apphttp.AppError {
	a.metrics.RecordRejection(reason)
	a.logger.Debug("webhook rejected", logger.String("reason", reason), logger.String("message", err.Message))
	return err
}

func parsePrice(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
