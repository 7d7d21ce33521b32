package importjob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
)

func TestTransition_HappyPath(t *testing.T) {
	now := time.Now()
	j := New("jpv", "JPV", "f.xlsx", now)
	require.Equal(t, StatusPending, j.Status)
	require.Nil(t, j.FinishedAt)

	require.NoError(t, j.Transition(StatusRunning, now.Add(time.Second)))
	require.Nil(t, j.FinishedAt)

	require.NoError(t, j.Transition(StatusCancelled, now.Add(2*time.Second)))
	require.NotNil(t, j.FinishedAt)
	require.Equal(t, now.Add(2*time.Second), *j.FinishedAt)
	require.Equal(t, now.Add(2*time.Second), j.UpdatedAt)
}

func TestTransition_Rejected(t *testing.T) {
	cases := []struct {
		from, to Status
	}{
		{StatusPending, StatusSuccess},
		{StatusPending, StatusCancelled},
		{StatusRunning, StatusPending},
		{StatusSuccess, StatusRunning},
		{StatusFailed, StatusSuccess},
		{StatusCancelled, StatusRunning},
	}
	for _, tc := range cases {
		j := &ImportJob{Status: tc.from}
		err := j.Transition(tc.to, time.Now())
		require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
		require.Equal(t, tc.from, j.Status)
	}
}

func TestClone_IsDeep(t *testing.T) {
	msg := "boom"
	j := New("jpv", "JPV", "f.xlsx", time.Now())
	j.ErrorMessage = &msg
	j.Result = &importrun.Result{Warnings: []importrun.ConversionWarning{{Column: "A"}}}

	c := j.Clone()
	*c.ErrorMessage = "changed"
	c.Result.Warnings[0].Column = "B"

	require.Equal(t, "boom", *j.ErrorMessage)
	require.Equal(t, "A", j.Result.Warnings[0].Column)
}

func TestEventType_IsFinal(t *testing.T) {
	require.True(t, EventDone.IsFinal())
	require.True(t, EventCancelled.IsFinal())
	require.False(t, EventCancelRequested.IsFinal())
	require.False(t, EventStatus.IsFinal())
}

func TestFinalEvent(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	job := New("jpv", "JPV", "jpv.xlsx", now)

	_, ok := FinalEvent(job)
	require.False(t, ok)

	require.NoError(t, job.Transition(StatusRunning, now))
	require.NoError(t, job.Transition(StatusFailed, now.Add(time.Minute)))
	msg := "bulk load failed"
	job.ErrorMessage = &msg

	ev, ok := FinalEvent(job)
	require.True(t, ok)
	require.Equal(t, EventError, ev.Type)
	require.Equal(t, StatusFailed, ev.Status)
	require.Equal(t, job.ID, ev.JobID)
	require.Equal(t, msg, ev.Message)
	require.Equal(t, now.Add(time.Minute), ev.At)
}
