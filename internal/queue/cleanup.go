package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CleanupJob asks for the uploaded artifacts of a failed post to be removed
// from blob storage.
type CleanupJob struct {
	PostID string `json:"postId"`
	S3Key  string `json:"s3Key"`
}

// CleanupConsumer drains the cleanup list with a single in-flight job.
// Remote deletion is acknowledged but not performed yet; originals are the
// caller's data and removing derived artifacts for a post that may be
// retried is still an open call.
// TODO: delete <s3Key>/processed/ objects once retries stop re-using them.
type CleanupConsumer struct {
	client Commands
	logger *slog.Logger
	name   string
}

func NewCleanupConsumer(client Commands, logger *slog.Logger, name string) *CleanupConsumer {
	return &CleanupConsumer{client: client, logger: logger, name: name}
}

func (c *CleanupConsumer) Run(ctx context.Context) {
	c.logger.Info("cleanup consumer started", slog.String("queue", c.name))

	for ctx.Err() == nil {
		payload, err := c.client.BLMove(ctx, c.name, c.name+":active", "LEFT", "RIGHT", popTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("cleanup pop failed",
				slog.String("queue", c.name),
				slog.String("error", err.Error()),
			)
			time.Sleep(time.Second)
			continue
		}

		var job CleanupJob
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			c.logger.Error("dropping undecodable cleanup payload",
				slog.String("queue", c.name),
				slog.String("error", err.Error()),
			)
		} else {
			c.logger.Info("cleanup requested for failed post",
				slog.String("postId", job.PostID),
				slog.String("s3Key", job.S3Key),
			)
		}

		if err := c.client.LRem(context.Background(), c.name+":active", 1, payload).Err(); err != nil {
			c.logger.Warn("cleanup ack failed",
				slog.String("queue", c.name),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Info("cleanup consumer stopped", slog.String("queue", c.name))
}
