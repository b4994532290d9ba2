package decision

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateSafe_NilProvider(t *testing.T) {
	est := estimateSafe(context.Background(), nil, EstimateRequest{}, time.Second)
	assert.False(t, est.Present)
	assert.Equal(t, "provider_disabled", est.AbsentReason)
}

func TestEstimateSafe_Success(t *testing.T) {
	est := estimateSafe(context.Background(), fixedProvider(0.7, 1.2, 0.2), EstimateRequest{}, time.Second)
	assert.True(t, est.Present)
	assert.Equal(t, 0.7, est.PSuccess)
	assert.Equal(t, 1.2, est.EVR)
	assert.Equal(t, "stub-1", est.ModelVersion)
	assert.Empty(t, est.AbsentReason)
}

func TestEstimateSafe_PanicBecomesAbsent(t *testing.T) {
	p := &stubProvider{fn: func(context.Context, EstimateRequest) (Estimate, error) {
		panic("boom")
	}}

	assert.NotPanics(t, func() {
		est := estimateSafe(context.Background(), p, EstimateRequest{}, time.Second)
		assert.False(t, est.Present)
		assert.Contains(t, est.AbsentReason, "panic")
	})
}

func TestEstimateSafe_ErrorBecomesAbsent(t *testing.T) {
	p := &stubProvider{fn: func(context.Context, EstimateRequest) (Estimate, error) {
		return Estimate{}, fmt.Errorf("upstream 503")
	}}

	est := estimateSafe(context.Background(), p, EstimateRequest{}, time.Second)
	assert.False(t, est.Present)
	assert.Contains(t, est.AbsentReason, "503")
}

func TestEstimateSafe_TimeoutBecomesAbsent(t *testing.T) {
	est := estimateSafe(context.Background(), slowProvider(500*time.Millisecond), EstimateRequest{}, 20*time.Millisecond)
	assert.False(t, est.Present)
	assert.Contains(t, est.AbsentReason, "context deadline exceeded")
}

func TestEstimateSafe_RangeChecks(t *testing.T) {
	t.Run("P Success Out Of Range", func(t *testing.T) {
		est := estimateSafe(context.Background(), fixedProvider(1.5, 1.0, 0.2), EstimateRequest{}, time.Second)
		assert.False(t, est.Present)
		assert.Contains(t, est.AbsentReason, "p_success")
	})

	t.Run("Uncertainty Out Of Range", func(t *testing.T) {
		est := estimateSafe(context.Background(), fixedProvider(0.6, 1.0, -0.1), EstimateRequest{}, time.Second)
		assert.False(t, est.Present)
		assert.Contains(t, est.AbsentReason, "uncertainty")
	})

	t.Run("EVR Clamped Not Rejected", func(t *testing.T) {
		high := estimateSafe(context.Background(), fixedProvider(0.6, 9.0, 0.2), EstimateRequest{}, time.Second)
		assert.True(t, high.Present)
		assert.Equal(t, 3.0, high.EVR)

		low := estimateSafe(context.Background(), fixedProvider(0.6, -4.0, 0.2), EstimateRequest{}, time.Second)
		assert.True(t, low.Present)
		assert.Equal(t, -1.0, low.EVR)
	})
}
