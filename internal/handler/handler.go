// Package handler exposes the calculation engine over HTTP using fasthttp.
package handler

import (
	"context"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"pension-calculation-engine/internal/model"
)

const (
	pathCalculation = "/api/calculation-requests"
	pathHealth      = "/health"
	pathReady       = "/health/ready"
	pathMetrics     = "/metrics"
)

// Processor runs one calculation request.
type Processor interface {
	Process(ctx context.Context, req *model.CalculationRequest) *model.CalculationResponse
}

type Handler struct {
	engine  Processor
	logger  *slog.Logger
	metrics fasthttp.RequestHandler
}

func New(engine Processor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:  engine,
		logger:  logger,
		metrics: fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
	}
}

// Handle is the fasthttp entry point.
func (h *Handler) Handle(ctx *fasthttp.RequestCtx) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("request panicked",
				"path", string(ctx.Path()),
				"panic", r)
			ctx.ResetBody()
			writeError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
		}
	}()

	switch string(ctx.Path()) {
	case pathCalculation:
		if !ctx.IsPost() {
			writeError(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.calculate(ctx)
	case pathHealth:
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("healthy")
	case pathReady:
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ready")
	case pathMetrics:
		h.metrics(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "Not found")
	}
}

func (h *Handler) calculate(ctx *fasthttp.RequestCtx) {
	var req model.CalculationRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.logger.Debug("rejecting malformed request", "error", err)
		writeError(ctx, fasthttp.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	resp := h.engine.Process(ctx, &req)

	body, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("encode response", "error", err, "calculation_id", resp.CalculationMetadata.CalculationID)
		writeError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	body, _ := json.Marshal(model.ErrorResponse{Status: status, Message: message})
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
