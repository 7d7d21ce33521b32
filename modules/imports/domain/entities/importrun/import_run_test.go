package importrun

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusFrom(t *testing.T) {
	s, err := StatusFrom(" success ")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, s)

	_, err = StatusFrom("RUNNING")
	require.Error(t, err)
}

func TestFindParams_EffectiveLimit(t *testing.T) {
	var nilParams *FindParams
	require.Equal(t, 100, nilParams.EffectiveLimit())
	require.Equal(t, 100, (&FindParams{}).EffectiveLimit())
	require.Equal(t, 25, (&FindParams{Limit: 25}).EffectiveLimit())
	require.Equal(t, 1000, (&FindParams{Limit: 5000}).EffectiveLimit())
}

func TestResult_JSONShape(t *testing.T) {
	data, err := json.Marshal(Result{OK: true, TableName: "JPV", AttemptedRows: 3, InsertedRows: 2, SkippedDuplicates: 1, Note: "n"})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true,"tableName":"JPV","attemptedRows":3,"insertedRows":2,"skippedDuplicates":1,"note":"n"}`, string(data))
}
