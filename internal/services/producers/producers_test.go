package producers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinTrade/internal/domain/models"
)

// testWindow builds a flat-price window with the given indicator columns.
func testWindow(n int, cols map[string][]float64) *models.MarketWindow {
	w := &models.MarketWindow{Symbol: "BTC/USDT", Timeframe: "1m"}
	w.Close = make([]float64, n)
	for i := range w.Close {
		w.Close[i] = 100
	}
	w.Indicators = make(map[string][]float64, len(cols))
	for name, col := range cols {
		w.Indicators[name] = col
	}
	return w
}

// column fills n values with fill and overwrites the tail.
func column(n int, fill float64, tail ...float64) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = fill
	}
	copy(col[n-len(tail):], tail)
	return col
}

func TestRSISignals(t *testing.T) {
	ctx := context.Background()
	p := NewRSI()

	cases := []struct {
		name string
		tail []float64
		want int
	}{
		{"cross up through upper sells", []float64{65, 75}, -1},
		{"sitting above upper is quiet", []float64{75, 76}, 0},
		{"cross down through lower buys", []float64{35, 25}, 1},
		{"sitting below lower is quiet", []float64{25, 24}, 0},
		{"mid-range holds", []float64{50, 55}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := testWindow(20, map[string][]float64{models.ColRSI: column(20, 50, tc.tail...)})
			got, err := p.Evaluate(ctx, w)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRSIGuards(t *testing.T) {
	ctx := context.Background()
	p := NewRSI()

	// Missing column holds without error.
	got, err := p.Evaluate(ctx, testWindow(20, nil))
	require.NoError(t, err)
	assert.Zero(t, got)

	// A window shorter than period+1 holds.
	w := testWindow(10, map[string][]float64{models.ColRSI: column(10, 50, 65, 75)})
	got, err = p.Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Zero(t, got)

	// NaN cells hold.
	w = testWindow(20, map[string][]float64{models.ColRSI: column(20, 50, math.NaN(), 75)})
	got, err = p.Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestParameterizedColumns(t *testing.T) {
	assert.Equal(t, []string{"rsi"}, NewRSI().RequiredColumns())
	assert.Equal(t, []string{"rsi_21"}, NewRSI(WithRSIPeriod(21)).RequiredColumns())
	assert.Equal(t, []string{"macd_5_35_5", "macd_signal_5_35_5"},
		NewMACDCrossover(WithMACDPeriods(5, 35, 5)).RequiredColumns())
	assert.Equal(t, []string{"bb_h_10", "bb_m_10", "bb_l_10"},
		NewBollingerMeanReversion(WithBollingerPeriod(10)).RequiredColumns())
	assert.Equal(t, []string{"stoch_k_5_3", "stoch_d_5_3"},
		NewStochasticOscillator(WithStochasticPeriods(5, 3)).RequiredColumns())
	assert.Equal(t, []string{"williams_r_10"},
		NewWilliamsR(WithWilliamsPeriod(10)).RequiredColumns())

	// A slow period at or below the fast one is rejected, keeping defaults.
	assert.Equal(t, []string{"macd", "macd_signal"},
		NewMACDCrossover(WithMACDPeriods(26, 12, 9)).RequiredColumns())

	// Evaluation reads the suffixed column, not the default one.
	p := NewRSI(WithRSIPeriod(21))
	w := testWindow(25, map[string][]float64{"rsi_21": column(25, 50, 65, 75)})
	got, err := p.Evaluate(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, -1, got)
}

func TestZoneOverrides(t *testing.T) {
	ctx := context.Background()

	// 55 -> 65 crosses a tightened 60 line but not the default 70.
	w := testWindow(20, map[string][]float64{models.ColRSI: column(20, 50, 55, 65)})
	got, err := NewRSI().Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Zero(t, got)
	got, err = NewRSI(WithRSIBands(40, 60)).Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, -1, got)

	// The crossing lands at K 28: inside a 30-point oversold zone, outside 20.
	w = testWindow(20, map[string][]float64{
		models.ColStochK: column(20, 50, 25, 28),
		models.ColStochD: column(20, 50, 26, 26),
	})
	got, err = NewStochasticOscillator().Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Zero(t, got)
	got, err = NewStochasticOscillator(WithStochasticZones(30, 70)).Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	// -85 -> -75 exits the default -80 zone but never entered a -90 one.
	w = testWindow(20, map[string][]float64{models.ColWilliamsR: column(20, -50, -85, -75)})
	got, err = NewWilliamsR().Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	got, err = NewWilliamsR(WithWilliamsZones(-90, -10)).Evaluate(ctx, w)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestMACDCrossover(t *testing.T) {
	ctx := context.Background()
	p := NewMACDCrossover()
	n := 40

	mk := func(macdTail, signalTail []float64) *models.MarketWindow {
		return testWindow(n, map[string][]float64{
			models.ColMACD:       column(n, 0, macdTail...),
			models.ColMACDSignal: column(n, 0, signalTail...),
		})
	}

	got, err := p.Evaluate(ctx, mk([]float64{-0.5, 0.5}, []float64{0, 0}))
	require.NoError(t, err)
	assert.Equal(t, 1, got, "macd crossing above signal buys")

	got, err = p.Evaluate(ctx, mk([]float64{0.5, -0.5}, []float64{0, 0}))
	require.NoError(t, err)
	assert.Equal(t, -1, got, "macd crossing below signal sells")

	got, err = p.Evaluate(ctx, mk([]float64{1, 1.5}, []float64{0, 0}))
	require.NoError(t, err)
	assert.Zero(t, got, "staying above is not a crossing")

	// 34 rows misses the slow+signal minimum of 35.
	short := testWindow(34, map[string][]float64{
		models.ColMACD:       column(34, 0, -0.5, 0.5),
		models.ColMACDSignal: column(34, 0, 0, 0),
	})
	got, err = p.Evaluate(ctx, short)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestBollingerMeanReversion(t *testing.T) {
	ctx := context.Background()
	p := NewBollingerMeanReversion()
	n := 25

	mk := func(lastClose float64) *models.MarketWindow {
		w := testWindow(n, map[string][]float64{
			models.ColBBUpper:  column(n, 110),
			models.ColBBMiddle: column(n, 100),
			models.ColBBLower:  column(n, 90),
		})
		w.Close[n-1] = lastClose
		return w
	}

	got, err := p.Evaluate(ctx, mk(89))
	require.NoError(t, err)
	assert.Equal(t, 1, got, "touching the lower band buys")

	got, err = p.Evaluate(ctx, mk(111))
	require.NoError(t, err)
	assert.Equal(t, -1, got, "touching the upper band sells")

	got, err = p.Evaluate(ctx, mk(100))
	require.NoError(t, err)
	assert.Zero(t, got)

	// Band boundary counts as a touch.
	got, err = p.Evaluate(ctx, mk(90))
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestStochasticOscillator(t *testing.T) {
	ctx := context.Background()
	p := NewStochasticOscillator()
	n := 20

	mk := func(kTail, dTail []float64) *models.MarketWindow {
		return testWindow(n, map[string][]float64{
			models.ColStochK: column(n, 50, kTail...),
			models.ColStochD: column(n, 50, dTail...),
		})
	}

	got, err := p.Evaluate(ctx, mk([]float64{10, 15}, []float64{12, 12}))
	require.NoError(t, err)
	assert.Equal(t, 1, got, "upward crossing inside oversold buys")

	got, err = p.Evaluate(ctx, mk([]float64{90, 85}, []float64{88, 88}))
	require.NoError(t, err)
	assert.Equal(t, -1, got, "downward crossing inside overbought sells")

	got, err = p.Evaluate(ctx, mk([]float64{40, 55}, []float64{50, 50}))
	require.NoError(t, err)
	assert.Zero(t, got, "crossing outside the zones is quiet")
}

func TestWilliamsR(t *testing.T) {
	ctx := context.Background()
	p := NewWilliamsR()
	n := 20

	mk := func(tail ...float64) *models.MarketWindow {
		return testWindow(n, map[string][]float64{models.ColWilliamsR: column(n, -50, tail...)})
	}

	got, err := p.Evaluate(ctx, mk(-85, -75))
	require.NoError(t, err)
	assert.Equal(t, 1, got, "leaving oversold buys")

	got, err = p.Evaluate(ctx, mk(-15, -25))
	require.NoError(t, err)
	assert.Equal(t, -1, got, "dropping out of overbought sells")

	got, err = p.Evaluate(ctx, mk(-50, -55))
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestBuild(t *testing.T) {
	set, err := Build([]string{NameRSI, NameMACD, NameBollinger, NameStochastic, NameWilliamsR})
	require.NoError(t, err)
	require.Len(t, set, 5)

	names := make([]string, 0, len(set))
	for _, p := range set {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"RSI", "MACD", "BOLLINGER", "STOCHASTIC", "WILLIAMS_R"}, names)

	_, err = Build([]string{"SMA"})
	assert.Error(t, err)
}

func TestModelScorer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/model/score", r.URL.Path)
		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTC/USDT", req.Symbol)
		assert.Contains(t, req.Features, "close")

		json.NewEncoder(rw).Encode(scoreResponse{Signal: 1, Confidence: 1.4})
	}))
	defer srv.Close()

	p := NewModelScorer(srv.URL, "15m", 0)
	w := testWindow(10, map[string][]float64{models.ColRSI: column(10, 50)})

	got, err := p.Evaluate(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, 1.0, p.Confidence(w), "confidence is clamped to the unit interval")
}

func TestModelScorerUnconfigured(t *testing.T) {
	p := NewModelScorer("", "", 0)
	_, err := p.Evaluate(context.Background(), testWindow(10, nil))
	assert.Error(t, err)
	assert.Zero(t, p.Confidence(nil))
}
