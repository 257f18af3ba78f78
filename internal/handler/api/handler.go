// Package api exposes the operator HTTP surface: cycle state, decision
// history, producer lifecycle control and engine counters, plus a websocket
// stream of cycle snapshots for dashboards.
package api

import (
	"time"

	"FinTrade/internal/domain/models"
	icache "FinTrade/internal/service/cache"
	"FinTrade/internal/service/ratelimit"
	"FinTrade/internal/usecase"
	pkgcache "FinTrade/pkg/cache"
	xhttp "FinTrade/pkg/http"
	xlogger "FinTrade/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Engine is the read side of the trading engine the operator API serves.
type Engine interface {
	LastSnapshot() *models.CycleSnapshot
	Stats() models.EngineStats
	Symbol() string
	Manager() *usecase.StrategyManager
}

// OperatorHandler implements the Echo handlers for the operator API.
type OperatorHandler struct {
	logger     *xlogger.Logger
	engine     Engine
	decisions  *usecase.DecisionsUseCase
	hub        *Hub
	cache      *icache.TTLCache[*usecase.GetDecisionsResult]
	rl         *ratelimit.Limiter
	rateCap    float64
	rateRefill float64
}

func NewOperatorHandler(logger *xlogger.Logger, engine Engine, decisions *usecase.DecisionsUseCase, hub *Hub) *OperatorHandler {
	return &OperatorHandler{
		logger:     logger,
		engine:     engine,
		decisions:  decisions,
		hub:        hub,
		cache:      icache.NewTTLCache[*usecase.GetDecisionsResult](),
		rl:         ratelimit.New(),
		rateCap:    5,
		rateRefill: 2,
	}
}

// SetRateLimit overrides the per-client budget for the decisions endpoint.
func (h *OperatorHandler) SetRateLimit(capacity, refillPerSec float64) {
	if capacity > 0 {
		h.rateCap = capacity
	}
	if refillPerSec > 0 {
		h.rateRefill = refillPerSec
	}
}

func (h *OperatorHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/state", h.State)
	g.GET("/decisions", h.Decisions)
	g.GET("/producers", h.Producers)
	g.POST("/producers/:name/status", h.SetProducerStatus)
	g.POST("/producers/:name/reset", h.ResetProducer)
	g.GET("/stats", h.Stats)
	g.GET("/ws/state", h.StateStream)
}

// State returns the snapshot of the most recent completed cycle.
func (h *OperatorHandler) State(c echo.Context) error {
	snap := h.engine.LastSnapshot()
	if snap == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no completed cycle yet"))
	}
	return xhttp.SuccessResponse(c, snap)
}

// Decisions serves the in-memory decision history; ranged requests
// (from/to) are answered from the audit store instead.
func (h *OperatorHandler) Decisions(c echo.Context) error {
	req := &models.DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := req.Symbol
	if symbol == "" {
		symbol = h.engine.Symbol()
	}

	if !h.rl.Allow(c.RealIP()+":decisions", h.rateCap, h.rateRefill) {
		h.logger.Warn("decisions rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
	}

	if req.From != "" || req.To != "" {
		return h.rangedDecisions(c, symbol, req)
	}

	hist := h.engine.Manager().DecisionHistory(req.Limit)
	rows := make([]models.DecisionRecord, 0, len(hist))
	for _, d := range hist {
		// Cycle number and fill price are only tracked in the audit trail.
		rows = append(rows, models.DecisionRecord{
			Timestamp:  d.Timestamp,
			Symbol:     symbol,
			Action:     d.Action,
			Confidence: d.Confidence,
			Reasoning:  d.Reasoning,
			Votes:      d.Votes,
		})
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *OperatorHandler) rangedDecisions(c echo.Context, symbol string, req *models.DecisionsRequest) error {
	if h.decisions == nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("decision audit store not configured"))
	}

	key := pkgcache.GenerateKeyWithParams("decisions", symbol, req.From, req.To, req.Limit)
	if v, ok := h.cache.Get(key); ok {
		return xhttp.SuccessResponse(c, v)
	}

	from, _ := xhttp.ParseTime(req.From)
	to, _ := xhttp.ParseTime(req.To)
	res, err := h.decisions.GetDecisions(c.Request().Context(), usecase.GetDecisionsParams{
		Symbol: symbol,
		From:   from,
		To:     to,
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.Error("decisions query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("decision query failed").WithError(err))
	}

	h.cache.Set(key, res, 30*time.Second)
	return xhttp.SuccessResponse(c, res)
}

// Producers returns the per-producer performance map.
func (h *OperatorHandler) Producers(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Manager().Performance())
}

// SetProducerStatus transitions one producer. ERROR is not operator
// settable; the status whitelist in the request model excludes it.
func (h *OperatorHandler) SetProducerStatus(c echo.Context) error {
	name := c.Param("name")
	req := &models.ProducerStatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.engine.Manager().SetStatus(name, models.ProducerStatus(req.Status)); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("producer %q not registered", name))
	}
	return xhttp.SuccessResponse(c, map[string]string{"producer": name, "status": req.Status})
}

// ResetProducer returns a producer to active, clearing a recorded error.
func (h *OperatorHandler) ResetProducer(c echo.Context) error {
	name := c.Param("name")
	if err := h.engine.Manager().Reset(name); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("producer %q not registered", name))
	}
	return xhttp.SuccessResponse(c, map[string]string{"producer": name, "status": string(models.StatusActive)})
}

// Stats returns the engine counters.
func (h *OperatorHandler) Stats(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Stats())
}

// StateStream upgrades to a websocket subscribed to cycle snapshots.
func (h *OperatorHandler) StateStream(c echo.Context) error {
	if h.hub == nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("state stream not configured"))
	}
	return h.hub.ServeWS(c.Response(), c.Request())
}

var _ xhttp.Handler = (*OperatorHandler)(nil)
