package jobstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importjob"
)

const (
	DefaultPrefix = "sheet-importer:jobs:"
	// maxWatchRetries bounds optimistic retries when a key changes between
	// WATCH and EXEC.
	maxWatchRetries = 5
)

// Redis stores each job as a JSON value that expires ttl after its last write.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisFromURL parses a redis:// URL and pings the server.
func NewRedisFromURL(ctx context.Context, url, prefix string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedis(client, prefix, ttl), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(id uuid.UUID) string {
	return r.prefix + id.String()
}

func (r *Redis) Create(ctx context.Context, job *importjob.ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	ok, err := r.client.SetNX(ctx, r.key(job.ID), data, r.ttl).Result()
	if err != nil {
		return errors.Wrap(err, "store job")
	}
	if !ok {
		return errors.Errorf("job %s already exists", job.ID)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id uuid.UUID) (*importjob.ImportJob, error) {
	return decode(r.client.Get(ctx, r.key(id)))
}

func decode(cmd *redis.StringCmd) (*importjob.ImportJob, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, importjob.ErrJobNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load job")
	}
	var job importjob.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Wrap(err, "decode job")
	}
	return &job, nil
}

func (r *Redis) Update(ctx context.Context, job *importjob.ImportJob) error {
	key := r.key(job.ID)
	return r.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := decode(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		next := job.Clone()
		next.CancelRequested = next.CancelRequested || current.CancelRequested
		return r.write(ctx, tx, next)
	})
}

func (r *Redis) SetCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	key := r.key(id)
	flipped := false
	err := r.watch(ctx, key, func(tx *redis.Tx) error {
		flipped = false
		job, err := decode(tx.Get(ctx, key))
		if errors.Is(err, importjob.ErrJobNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if job.CancelRequested || job.Status.IsTerminal() {
			return nil
		}
		job.CancelRequested = true
		if err := r.write(ctx, tx, job); err != nil {
			return err
		}
		flipped = true
		return nil
	})
	return flipped, err
}

// DeleteFinishedBefore is a no-op: keys expire on their own TTL.
func (r *Redis) DeleteFinishedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *Redis) write(ctx context.Context, tx *redis.Tx, job *importjob.ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(job.ID), data, r.ttl)
		return nil
	})
	return err
}

func (r *Redis) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.Errorf("job %s: too much contention", key)
}
