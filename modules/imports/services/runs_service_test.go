package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

type recordingRuns struct {
	fakeRuns
	got *importrun.FindParams
}

func (r *recordingRuns) List(ctx context.Context, params *importrun.FindParams) ([]*importrun.ImportRun, error) {
	r.got = params
	return nil, nil
}

func TestRunsService_List(t *testing.T) {
	from := time.Date(2025, 1, 10, 0, 0, 0, 0, time.Local)
	to := from.Add(24 * time.Hour)

	cases := []struct {
		name      string
		params    *importrun.FindParams
		wantErr   bool
		wantLimit int
	}{
		{name: "nil params use default limit", params: nil, wantLimit: importrun.DefaultListLimit},
		{name: "limit capped", params: &importrun.FindParams{Limit: 5000}, wantLimit: importrun.MaxListLimit},
		{name: "explicit limit kept", params: &importrun.FindParams{Limit: 10, From: &from, To: &to}, wantLimit: 10},
		{name: "inverted range", params: &importrun.FindParams{From: &to, To: &from}, wantErr: true},
		{name: "bad status", params: &importrun.FindParams{Status: "DONE"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &recordingRuns{}
			_, err := NewRunsService(repo).List(context.Background(), tc.params)
			if tc.wantErr {
				require.ErrorIs(t, err, serrors.ErrValidation)
				require.Nil(t, repo.got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantLimit, repo.got.Limit)
		})
	}
}
