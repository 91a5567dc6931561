// Package queue consumes media jobs from a Redis list and hands them to the
// executor under a bounded concurrency limit.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/executor"
	"mediaqueue/internal/metrics"
)

const (
	popTimeout = 5 * time.Second
	// attemptTTL bounds how long per-post attempt counters survive; it
	// matches the progress record TTL so a stale post resets cleanly.
	attemptTTL = 24 * time.Hour
)

// Runner is the executor surface the consumer needs.
type Runner interface {
	Execute(ctx context.Context, job *domain.Job) (*executor.Outcome, error)
}

// Commands is the slice of the redis client the consumers use. *redis.Client
// satisfies it.
type Commands interface {
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Decr(ctx context.Context, key string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd
}

// Consumer pops jobs with BLMOVE into a per-queue active list, tracks the
// attempt counter per post and applies the retry policy. Attempts for one
// post are serialised by the single payload moving through the lists.
type Consumer struct {
	client      Commands
	runner      Runner
	logger      *slog.Logger
	name        string
	maxAttempts int
	sem         *semaphore.Weighted
	wg          sync.WaitGroup
}

func NewConsumer(client Commands, runner Runner, logger *slog.Logger, name string, concurrency, maxAttempts int) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Consumer{
		client:      client,
		runner:      runner,
		logger:      logger,
		name:        name,
		maxAttempts: maxAttempts,
		sem:         semaphore.NewWeighted(int64(concurrency)),
	}
}

func (c *Consumer) activeList() string { return c.name + ":active" }
func (c *Consumer) deadList() string   { return c.name + ":dead" }

func attemptsKey(postID string) string { return "attempts:" + postID }

// Run blocks until ctx is cancelled, then drains in-flight jobs before
// returning.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("queue consumer started", slog.String("queue", c.name))

	for {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			break
		}

		payload, err := c.client.BLMove(ctx, c.name, c.activeList(), "LEFT", "RIGHT", popTimeout).Result()
		if err != nil {
			c.sem.Release(1)
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("queue pop failed",
				slog.String("queue", c.name),
				slog.String("error", err.Error()),
			)
			time.Sleep(time.Second)
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.sem.Release(1)
			c.handle(ctx, payload)
		}()
	}

	c.wg.Wait()
	c.logger.Info("queue consumer stopped", slog.String("queue", c.name))
}

// handle runs one popped payload to a terminal decision: acknowledged,
// requeued, or dead-lettered. The payload stays on the active list until the
// decision lands.
func (c *Consumer) handle(ctx context.Context, payload string) {
	var job domain.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		c.logger.Error("dropping undecodable job payload",
			slog.String("queue", c.name),
			slog.String("error", err.Error()),
		)
		c.deadLetter(payload)
		c.ack(payload)
		return
	}

	job.Attempt = c.nextAttempt(ctx, job.PostID)

	_, err := c.runner.Execute(ctx, &job)
	switch {
	case err == nil:
		c.client.Del(context.Background(), attemptsKey(job.PostID))
		c.ack(payload)

	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		// Shutdown took the attempt down, not the job; put it back at the
		// head so the next worker picks it up first.
		bg := context.Background()
		if pushErr := c.client.LPush(bg, c.name, payload).Err(); pushErr != nil {
			c.logger.Error("requeue on shutdown failed",
				slog.String("postId", job.PostID),
				slog.String("error", pushErr.Error()),
			)
		}
		c.unwindAttempt(bg, job.PostID)
		c.ack(payload)

	case job.Attempt >= c.maxAttempts:
		metrics.QueueDeadLetterTotal.Inc()
		c.logger.Error("job exhausted attempts, dead-lettering",
			slog.String("postId", job.PostID),
			slog.Int("attempts", job.Attempt),
			slog.String("error", err.Error()),
		)
		c.deadLetter(payload)
		c.client.Del(context.Background(), attemptsKey(job.PostID))
		c.ack(payload)

	default:
		metrics.QueueRequeuesTotal.Inc()
		c.logger.Warn("job attempt failed, requeueing",
			slog.String("postId", job.PostID),
			slog.Int("attempt", job.Attempt),
			slog.String("error", err.Error()),
		)
		if pushErr := c.client.RPush(context.Background(), c.name, payload).Err(); pushErr != nil {
			c.logger.Error("requeue failed",
				slog.String("postId", job.PostID),
				slog.String("error", pushErr.Error()),
			)
		}
		c.ack(payload)
	}
}

// nextAttempt bumps and returns the 1-based attempt counter for the post.
// A counter failure degrades to attempt 1 rather than blocking the job.
func (c *Consumer) nextAttempt(ctx context.Context, postID string) int {
	key := attemptsKey(postID)
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		c.logger.Warn("attempt counter unavailable",
			slog.String("postId", postID),
			slog.String("error", err.Error()),
		)
		return 1
	}
	c.client.Expire(ctx, key, attemptTTL)
	return int(n)
}

// unwindAttempt takes back the INCR of a shutdown-cancelled attempt. The
// counter may have expired in between; DECR would then recreate it at -1
// and the next delivery would report attempt 0, so only an existing key is
// decremented.
func (c *Consumer) unwindAttempt(ctx context.Context, postID string) {
	key := attemptsKey(postID)
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return
	}
	c.client.Decr(ctx, key)
}

func (c *Consumer) ack(payload string) {
	if err := c.client.LRem(context.Background(), c.activeList(), 1, payload).Err(); err != nil {
		c.logger.Warn("active list ack failed",
			slog.String("queue", c.name),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) deadLetter(payload string) {
	if err := c.client.RPush(context.Background(), c.deadList(), payload).Err(); err != nil {
		c.logger.Error("dead-letter push failed",
			slog.String("queue", c.name),
			slog.String("error", err.Error()),
		)
	}
}
