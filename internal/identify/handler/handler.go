package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/akanksha509/backend-task/internal/identify/models"
	platformmetrics "github.com/akanksha509/backend-task/internal/platform/metrics"
	"github.com/akanksha509/backend-task/internal/platform/middleware"
	dErrors "github.com/akanksha509/backend-task/pkg/domain-errors"
	"github.com/akanksha509/backend-task/pkg/platform/httputil"
)

// Service defines the interface for identity reconciliation.
type Service interface {
	Identify(ctx context.Context, email, phoneNumber string) (*models.ContactBundle, error)
}

// Handler handles the /identify endpoint.
type Handler struct {
	logger   *slog.Logger
	identify Service
	metrics  *platformmetrics.Metrics
	limiter  func(http.Handler) http.Handler
}

type Option func(h *Handler)

// WithRateLimiter guards /identify with the given middleware.
func WithRateLimiter(limiter func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.limiter = limiter }
}

func WithMetrics(m *platformmetrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// New creates the identify Handler.
func New(identify Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{logger: logger, identify: identify}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the identify routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	identifyRouter := chi.NewRouter()
	identifyRouter.Use(middleware.Recovery(h.logger))
	identifyRouter.Use(middleware.RequestID)
	identifyRouter.Use(middleware.Logger(h.logger))
	identifyRouter.Use(middleware.Timeout(30 * time.Second))
	identifyRouter.Use(middleware.ContentTypeJSON)
	identifyRouter.Use(middleware.Latency(h.metrics))
	if h.limiter != nil {
		identifyRouter.Use(h.limiter)
	}
	identifyRouter.Post("/identify", h.handleIdentify)

	r.Mount("/", identifyRouter)
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req models.IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid identify request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	bundle, err := h.identify.Identify(ctx, req.Email, req.PhoneNumber.String())
	if err != nil {
		switch {
		case dErrors.Is(err, dErrors.CodeValidation):
			h.logger.WarnContext(ctx, "identify request rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			httputil.WriteError(w, err)
		case dErrors.Is(err, dErrors.CodeUnavailable), dErrors.Is(err, dErrors.CodeTimeout):
			h.logger.WarnContext(ctx, "identify temporarily unavailable",
				"request_id", requestID,
				"error", err.Error(),
			)
			httputil.WriteError(w, err)
		default:
			h.logger.ErrorContext(ctx, "identify failed",
				"request_id", requestID,
				"error", err.Error(),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "identify failed"))
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.IdentifyResponse{Contact: *bundle})
}
