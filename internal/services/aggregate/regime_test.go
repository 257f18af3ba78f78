package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVolatilityShortWindowReadsZero(t *testing.T) {
	assert.Zero(t, Volatility(volatileWindow(19)), "19 bars never classify volatile")
	assert.Greater(t, Volatility(volatileWindow(20)), 0.02)
}

func TestVolatilityCalmRamp(t *testing.T) {
	v := Volatility(rampWindow(60, 100, 1))
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 0.02)
}

func TestDetectTrend(t *testing.T) {
	assert.Equal(t, TrendUnknown, DetectTrend(rampWindow(49, 100, 1)), "49 bars stay unknown")
	assert.Equal(t, TrendUp, DetectTrend(rampWindow(50, 100, 1)))
	assert.Equal(t, TrendDown, DetectTrend(rampWindow(50, 200, -1)))
	assert.Equal(t, TrendSideways, DetectTrend(rampWindow(50, 100, 0)))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CondVolatile, Classify(volatileWindow(30), 0.02))
	assert.Equal(t, CondUptrend, Classify(rampWindow(60, 100, 1), 0.02))
	assert.Equal(t, CondDowntrend, Classify(rampWindow(60, 200, -1), 0.02))
	assert.Equal(t, CondNormal, Classify(rampWindow(10, 100, 0), 0.02))
	assert.Equal(t, CondNormal, Classify(nil, 0.02))

	// A sideways window with known trend still reads normal.
	assert.Equal(t, CondNormal, Classify(rampWindow(50, 100, 0), 0.02))
}
