package producers

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinTrade/internal/domain/models"
	domsvc "FinTrade/internal/domain/service"
	svcmetrics "FinTrade/internal/service/metrics"
	xhttp "FinTrade/pkg/http"
)

// ModelScorer defers to an external model service that scores the latest
// feature row. Unlike the rule producers it reports its own confidence,
// taken straight from the service response.
type ModelScorer struct {
	baseURL string
	horizon string
	client  *xhttp.Client

	// Confidence of the most recent evaluation. The manager reads it
	// through the SelfConfident extension right after Evaluate; cycles
	// are sequential so there is no race.
	lastConfidence float64
}

func NewModelScorer(baseURL, horizon string, timeout time.Duration) *ModelScorer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if horizon == "" {
		horizon = "15m"
	}
	return &ModelScorer{
		baseURL: baseURL,
		horizon: horizon,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type scoreRequest struct {
	Symbol   string             `json:"symbol"`
	Horizon  string             `json:"horizon"`
	Features map[string]float64 `json:"features"`
}

type scoreResponse struct {
	Signal     int     `json:"signal"`
	Confidence float64 `json:"confidence"`
}

func (p *ModelScorer) Name() string { return NameModel }

func (p *ModelScorer) Evaluate(ctx context.Context, w *models.MarketWindow) (int, error) {
	p.lastConfidence = 0
	if p.baseURL == "" {
		return 0, fmt.Errorf("model service url not configured")
	}
	if w.Len() == 0 {
		return 0, nil
	}

	req := scoreRequest{Symbol: w.Symbol, Horizon: p.horizon, Features: latestFeatures(w)}
	var resp scoreResponse
	if err := p.postWithRetry(ctx, "/model/score", req, &resp, 3); err != nil {
		return 0, fmt.Errorf("score %s: %w", w.Symbol, err)
	}
	if resp.Signal < -1 || resp.Signal > 1 {
		return 0, fmt.Errorf("model returned signal %d", resp.Signal)
	}
	p.lastConfidence = math.Max(0, math.Min(1, resp.Confidence))
	return resp.Signal, nil
}

// Confidence reports the score attached to the latest evaluation.
func (p *ModelScorer) Confidence(_ *models.MarketWindow) float64 { return p.lastConfidence }

func (p *ModelScorer) postWithRetry(ctx context.Context, path string, payload, dest any, attempts int) error {
	start := time.Now()
	var err error
	for i := 1; i <= attempts; i++ {
		err = p.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     p.baseURL + path,
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    payload,
		}, dest)
		if err == nil {
			svcmetrics.ModelLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
			return nil
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	svcmetrics.ModelErrors.WithLabelValues(path).Inc()
	return err
}

// latestFeatures flattens the last bar and every indicator column into the
// model's feature map. NaN cells are left out.
func latestFeatures(w *models.MarketWindow) map[string]float64 {
	n := w.Len()
	feats := make(map[string]float64, len(w.Indicators)+5)
	put := func(name string, col []float64) {
		if len(col) == n && !math.IsNaN(col[n-1]) {
			feats[name] = col[n-1]
		}
	}
	put("open", w.Open)
	put("high", w.High)
	put("low", w.Low)
	put("close", w.Close)
	put("volume", w.Volume)
	for name, col := range w.Indicators {
		put(name, col)
	}
	return feats
}

var (
	_ domsvc.Producer      = (*ModelScorer)(nil)
	_ domsvc.SelfConfident = (*ModelScorer)(nil)
)
