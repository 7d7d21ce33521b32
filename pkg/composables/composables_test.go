package composables

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type runsQuery struct {
	From      *time.Time `form:"from"`
	TableName string     `form:"tableName"`
	Limit     int        `form:"limit"`
}

func TestUseQuery_DecodesTimesAndScalars(t *testing.T) {
	r := httptest.NewRequest("GET", "/runs?from=2025-01-12&tableName=JPV&limit=5", nil)

	q, err := UseQuery(&runsQuery{}, r)
	require.NoError(t, err)
	require.NotNil(t, q.From)
	require.Equal(t, 2025, q.From.Year())
	require.Equal(t, time.January, q.From.Month())
	require.Equal(t, 12, q.From.Day())
	require.Equal(t, "JPV", q.TableName)
	require.Equal(t, 5, q.Limit)
}

func TestUseLogger_FallsBackToStandardLogger(t *testing.T) {
	require.NotNil(t, UseLogger(context.Background()))

	entry := logrus.NewEntry(logrus.New()).WithField("request-id", "abc")
	ctx := WithLogger(context.Background(), entry)
	require.Same(t, entry, UseLogger(ctx))
}

func TestUseTx_WithoutPoolOrTx(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
	require.False(t, HasTx(context.Background()))
}
