package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/destination"
	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
)

func typedRows(n int) []destination.TypedRow {
	rows := make([]destination.TypedRow, n)
	for i := range rows {
		rows[i] = destination.TypedRow{SourceFileName: "f.xlsx", RowNumber: i + 1, Fingerprint: fmt.Sprintf("h%03d", i)}
	}
	return rows
}

var loaderRef = schema.TableRef{Schema: "importacionxls", Table: "JPV"}

func TestLoader_InsertsInChunks(t *testing.T) {
	dest := newFakeDest()
	l := NewLoader(2, quietLog())

	attempted, err := l.Load(context.Background(), dest, loaderRef, nil, typedRows(5), nil)
	require.NoError(t, err)
	require.Equal(t, int64(5), attempted)

	inserts, _ := dest.calls()
	require.Equal(t, 3, inserts)
}

func TestLoader_CancelAfterFirstOfThreeChunks(t *testing.T) {
	dest := newFakeDest()
	l := NewLoader(2, quietLog())

	checks := 0
	checkpoint := func(context.Context) bool {
		checks++
		return checks > 1
	}
	attempted, err := l.Load(context.Background(), dest, loaderRef, nil, typedRows(6), checkpoint)

	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, int64(2), attempted)
	inserts, _ := dest.calls()
	require.Equal(t, 1, inserts)
}

func TestLoader_StorageFailureOnSecondOfThreeChunks(t *testing.T) {
	dest := newFakeDest()
	dest.failOnCall = 2
	l := NewLoader(2, quietLog())

	attempted, err := l.Load(context.Background(), dest, loaderRef, nil, typedRows(6), nil)

	require.ErrorIs(t, err, ErrLoadFailure)
	require.Contains(t, err.Error(), "chunk 2 of 3")
	require.Contains(t, err.Error(), "deadlock victim")
	require.Equal(t, int64(2), attempted)
	inserts, _ := dest.calls()
	require.Equal(t, 2, inserts)
}

func TestLoader_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempted, err := NewLoader(2, quietLog()).Load(ctx, newFakeDest(), loaderRef, nil, typedRows(3), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, attempted)
}

func TestLoader_DefaultsChunkSize(t *testing.T) {
	require.Equal(t, DefaultChunkSize, NewLoader(0, nil).ChunkSize())
}

func TestReconcile(t *testing.T) {
	cases := []struct {
		before, after, attempted int64
		inserted, skipped        int64
	}{
		{0, 10, 10, 10, 0},
		{10, 10, 10, 0, 10},
		{10, 14, 10, 4, 6},
		{10, 8, 5, 0, 5},
		{0, 20, 10, 20, 0},
	}
	for _, tc := range cases {
		inserted, skipped := Reconcile(tc.before, tc.after, tc.attempted)
		require.Equal(t, tc.inserted, inserted)
		require.Equal(t, tc.skipped, skipped)
	}
}
