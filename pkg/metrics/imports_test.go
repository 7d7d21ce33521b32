package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestImports_IsSingleton(t *testing.T) {
	a := Imports()
	b := Imports()
	require.Same(t, a, b)

	before := testutil.ToFloat64(a.Runs.WithLabelValues("JPV", "SUCCESS"))
	b.Runs.WithLabelValues("JPV", "SUCCESS").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(a.Runs.WithLabelValues("JPV", "SUCCESS")))
}
