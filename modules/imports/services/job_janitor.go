package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

type JobJanitor struct {
	jobs     *JobService
	interval time.Duration
	ttl      time.Duration
	log      *logrus.Entry
}

func NewJobJanitor(jobs *JobService, interval, ttl time.Duration, log *logrus.Entry) *JobJanitor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &JobJanitor{jobs: jobs, interval: interval, ttl: ttl, log: log}
}

// Run expires finished jobs every interval until ctx is done.
func (j *JobJanitor) Run(ctx context.Context) error {
	if j.interval <= 0 || j.ttl <= 0 {
		return nil
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := j.jobs.Expire(ctx, j.ttl)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			j.log.WithError(err).Warn("imports: job janitor tick failed")
			continue
		}
		if n > 0 {
			j.log.WithField("deleted", n).Info("imports: expired finished jobs")
		}
	}
}
