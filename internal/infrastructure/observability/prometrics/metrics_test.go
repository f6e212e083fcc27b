package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStandardRegistersInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	inst := Standard(New(reg, "", ""))

	inst.Counters[observability.MUsecaseRequests].Add(1,
		observability.L("use_case", "order.place"),
		observability.L("outcome", "success"),
	)
	inst.Counters[observability.MSideEffectFailures].Bind(observability.L("effect", "cart_clear")).Add(2)
	inst.Histograms[observability.MUsecaseDuration].Observe(0.2, observability.L("use_case", "order.place"))

	n, err := testutil.GatherAndCount(reg, "usecase_requests_total", "side_effect_failures_total", "usecase_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestCounterIsRegisteredOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "", "")

	a := r.Counter("cart_events_total", "help", "kind")
	b := r.Counter("cart_events_total", "help", "kind")
	a.Add(1, observability.L("kind", "add"))
	b.Add(1, observability.L("kind", "add"))

	n, err := testutil.GatherAndCount(reg, "cart_events_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRegistriesShareExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	Standard(New(reg, "", "")).Counter(observability.MSideEffectFailures).Add(1, observability.L("effect", "relay"))
	Standard(New(reg, "", "")).Counter(observability.MSideEffectFailures).Add(1, observability.L("effect", "relay"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == string(observability.MSideEffectFailures) {
			require.Equal(t, 2.0, mf.GetMetric()[0].GetCounter().GetValue())
			return
		}
	}
	t.Fatal("side_effect_failures_total not gathered")
}

func TestUnknownKeyIsNop(t *testing.T) {
	inst := Instruments{}
	require.NotPanics(t, func() {
		inst.Counter("missing_total").Bind(observability.L("a", "b")).Add(1)
		inst.Histogram("missing_seconds").Observe(1)
	})
}
