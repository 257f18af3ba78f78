package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinTrade/internal/domain/models"
	"FinTrade/internal/services/aggregate"
	"FinTrade/internal/usecase"
	"FinTrade/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

type stubMetrics struct{}

func (stubMetrics) RecordCycle(string, float64)                        {}
func (stubMetrics) RecordDecision(string, string)                      {}
func (stubMetrics) RecordOrder(string, string)                         {}
func (stubMetrics) RecordSignal(string, string)                        {}
func (stubMetrics) RecordProducerError(string)                         {}
func (stubMetrics) RecordProducerStatus(string, models.ProducerStatus) {}
func (stubMetrics) RecordPosition(string, float64, int)                {}
func (stubMetrics) RecordLastPrice(string, float64)                    {}
func (stubMetrics) RecordEventSent(string, string)                     {}
func (stubMetrics) RecordError(string)                                 {}
func (stubMetrics) RecordLatency(string, float64)                      {}

type stubProducer struct {
	name   string
	signal int
}

func (p *stubProducer) Name() string { return p.name }
func (p *stubProducer) Evaluate(context.Context, *models.MarketWindow) (int, error) {
	return p.signal, nil
}

// fakeEngine exposes a real manager behind canned snapshot and stats.
type fakeEngine struct {
	manager *usecase.StrategyManager
	snap    *models.CycleSnapshot
	stats   models.EngineStats
	symbol  string
}

func (e *fakeEngine) LastSnapshot() *models.CycleSnapshot { return e.snap }

func (e *fakeEngine) Stats() models.EngineStats { return e.stats }

func (e *fakeEngine) Symbol() string { return e.symbol }

func (e *fakeEngine) Manager() *usecase.StrategyManager { return e.manager }

// fakeStore records Query calls and serves canned rows.
type fakeStore struct {
	rows    []*models.DecisionRecord
	queries int
	symbol  string
	from    time.Time
	to      time.Time
	limit   int
}

func (s *fakeStore) Init(context.Context) error { return nil }

func (s *fakeStore) Store(context.Context, *models.DecisionRecord) error { return nil }

func (s *fakeStore) StoreBatch(context.Context, []*models.DecisionRecord) error { return nil }

func (s *fakeStore) Health(context.Context) error { return nil }

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) Query(_ context.Context, symbol string, from, to time.Time, limit int) ([]*models.DecisionRecord, error) {
	s.queries++
	s.symbol, s.from, s.to, s.limit = symbol, from, to, limit
	return s.rows, nil
}

func newTestHandler(t *testing.T, store *fakeStore) (*OperatorHandler, *fakeEngine) {
	t.Helper()
	log := testLogger(t)
	m := usecase.NewStrategyManager(aggregate.NewWeightedVoting(nil), log, stubMetrics{}, 1, 100)
	eng := &fakeEngine{manager: m, symbol: "BTC/USDT"}
	var dec *usecase.DecisionsUseCase
	if store != nil {
		dec = usecase.NewDecisionsUseCase(store)
	}
	return NewOperatorHandler(log, eng, dec, NewHub(log)), eng
}

func doRequest(t *testing.T, h *OperatorHandler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestStateBeforeFirstCycle(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/state", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, http.StatusNotFound, env.Status)
	assert.Contains(t, string(env.Data), "no completed cycle yet")
}

func TestStateReturnsSnapshot(t *testing.T) {
	h, eng := newTestHandler(t, nil)
	eng.snap = &models.CycleSnapshot{
		Timestamp:  time.Now().UTC(),
		Symbol:     "BTC/USDT",
		Cycle:      42,
		Action:     models.Buy,
		Confidence: 0.8,
		Price:      50100.5,
	}

	rec := doRequest(t, h, http.MethodGet, "/api/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.CycleSnapshot
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &snap))
	assert.Equal(t, int64(42), snap.Cycle)
	assert.Equal(t, models.Buy, snap.Action)
	assert.Equal(t, 50100.5, snap.Price)
}

func TestDecisionsServedFromMemory(t *testing.T) {
	h, eng := newTestHandler(t, nil)
	require.NoError(t, eng.manager.Register("alpha", &stubProducer{name: "alpha", signal: 1}))
	window := &models.MarketWindow{Symbol: "BTC/USDT", Timeframe: "1m", Close: make([]float64, 60)}
	eng.manager.MakeDecision(context.Background(), window)
	eng.manager.MakeDecision(context.Background(), window)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/decisions?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Rows  []models.DecisionRecord `json:"rows"`
		Total int64                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &list))
	require.Len(t, list.Rows, 2)
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, "BTC/USDT", list.Rows[0].Symbol)
}

func TestDecisionsLimitValidation(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/decisions?limit=5000", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, string(env.Data), "ERR_LTE")
}

func TestDecisionsBadTimestamp(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec := doRequest(t, h, http.MethodGet, "/api/v1/decisions?from=yesterday", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), "ERR_DATETIME")
}

func TestDecisionsRangedHitsStoreThenCache(t *testing.T) {
	store := &fakeStore{rows: []*models.DecisionRecord{
		{Timestamp: time.Now().UTC(), Symbol: "BTC/USDT", Cycle: 7, Action: models.Sell, Price: 49900},
	}}
	h, _ := newTestHandler(t, store)

	from := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	target := "/api/v1/decisions?from=" + from + "&limit=20"

	rec := doRequest(t, h, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, store.queries)
	assert.Equal(t, "BTC/USDT", store.symbol)
	assert.Equal(t, 20, store.limit)
	assert.False(t, store.from.IsZero())

	var res usecase.GetDecisionsResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &res))
	require.Equal(t, 1, res.Count)
	assert.Equal(t, int64(7), res.Decisions[0].Cycle)

	// identical request is answered from the response cache
	rec = doRequest(t, h, http.MethodGet, target, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.queries)
}

func TestDecisionsRateLimited(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	limited := false
	for i := 0; i < 8; i++ {
		rec := doRequest(t, h, http.MethodGet, "/api/v1/decisions", "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			assert.Contains(t, string(decodeEnvelope(t, rec).Data), "ERR_RATE_LIMITED")
			break
		}
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.True(t, limited, "burst of 8 requests should trip the limiter")
}

func TestProducersPerformance(t *testing.T) {
	h, eng := newTestHandler(t, nil)
	require.NoError(t, eng.manager.Register("rsi", &stubProducer{name: "rsi", signal: 1}))
	require.NoError(t, eng.manager.Register("macd", &stubProducer{name: "macd", signal: -1}))
	window := &models.MarketWindow{Symbol: "BTC/USDT", Timeframe: "1m", Close: make([]float64, 60)}
	eng.manager.MakeDecision(context.Background(), window)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/producers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var perf map[string]models.ProducerPerformance
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &perf))
	require.Len(t, perf, 2)
	assert.Equal(t, models.StatusActive, perf["rsi"].Status)
	assert.Equal(t, 1, perf["rsi"].BuySignals)
	assert.Equal(t, 1, perf["macd"].SellSignals)
}

func TestSetProducerStatus(t *testing.T) {
	h, eng := newTestHandler(t, nil)
	require.NoError(t, eng.manager.Register("rsi", &stubProducer{name: "rsi", signal: 1}))

	rec := doRequest(t, h, http.MethodPost, "/api/v1/producers/rsi/status", `{"status":"disabled"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusDisabled, eng.manager.Producers()["rsi"])

	rec = doRequest(t, h, http.MethodPost, "/api/v1/producers/ghost/status", `{"status":"active"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetProducerStatusRejectsError(t *testing.T) {
	h, eng := newTestHandler(t, nil)
	require.NoError(t, eng.manager.Register("rsi", &stubProducer{name: "rsi", signal: 1}))

	rec := doRequest(t, h, http.MethodPost, "/api/v1/producers/rsi/status", `{"status":"error"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), "ERR_ONEOF")
	assert.Equal(t, models.StatusActive, eng.manager.Producers()["rsi"])
}

func TestResetProducer(t *testing.T) {
	h, eng := newTestHandler(t, nil)
	require.NoError(t, eng.manager.Register("rsi", &stubProducer{name: "rsi", signal: 1}))
	require.NoError(t, eng.manager.SetStatus("rsi", models.StatusError))

	rec := doRequest(t, h, http.MethodPost, "/api/v1/producers/rsi/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusActive, eng.manager.Producers()["rsi"])

	rec = doRequest(t, h, http.MethodPost, "/api/v1/producers/ghost/reset", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	h, eng := newTestHandler(t, nil)
	eng.stats = models.EngineStats{
		Symbol:     "BTC/USDT",
		Timeframe:  "1m",
		Cycle:      12,
		TradeCount: 3,
		BuyCount:   2,
		SellCount:  1,
	}

	rec := doRequest(t, h, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.EngineStats
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &stats))
	assert.Equal(t, int64(12), stats.Cycle)
	assert.Equal(t, int64(3), stats.TradeCount)
}
