package observability

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFallsBackToNop(t *testing.T) {
	obs := New(nil, nil, nil)

	require.NotNil(t, obs.Tracer())
	require.NotNil(t, obs.Logger())
	assert.NotPanics(t, func() {
		obs.Metrics().Counter(observability.MHTTPRequests).Add(1)
		obs.Logger().Info("noop")
	})
}

func TestNewRoutesMetricsToInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := New(nil, nil, prometrics.Standard(prometrics.New(reg, "", "")))

	obs.Metrics().Counter(observability.MSideEffectFailures).Add(1, observability.L("effect", "notification"))
	obs.Metrics().Counter("unknown_total").Add(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	var got float64
	for _, f := range families {
		if f.GetName() == "side_effect_failures_total" {
			require.Len(t, f.GetMetric(), 1)
			got = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, got)
}
