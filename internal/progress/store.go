package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/metrics"
)

// RecordTTL bounds every per-post key; the TTL slides on each write so a
// post being worked on never expires mid-flight. Expiry alone garbage
// collects finished posts.
const RecordTTL = 24 * time.Hour

// Commands is the slice of the redis client the store uses. *redis.Client
// satisfies it.
type Commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Store keeps per-post max-progress, the completed-item set and cached item
// results in Redis. It is a hint cache, not a source of truth: every read
// failure falls back to a safe default and every write failure is swallowed,
// because re-execution must converge regardless of what the store holds.
type Store struct {
	client Commands
	logger *slog.Logger
}

func NewStore(client Commands, logger *slog.Logger) *Store {
	return &Store{client: client, logger: logger}
}

func maxProgressKey(postID string) string { return "maxProgress:" + postID }
func snapshotKey(postID string) string    { return "progress:" + postID }
func completedKey(postID string) string   { return "completed:" + postID }
func resultKey(postID, mediaID string) string {
	return "mediaResult:" + postID + ":" + mediaID
}

// GetMaxProgress returns the highest percentage ever reported for the post,
// or the starting progress when absent or unreadable.
func (s *Store) GetMaxProgress(ctx context.Context, postID string) float64 {
	raw, err := s.client.Get(ctx, maxProgressKey(postID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.readFailed("maxProgress", postID, err)
		}
		return domain.StartingProgress
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.readFailed("maxProgress", postID, err)
		return domain.StartingProgress
	}
	return value
}

// SetMaxProgress writes the value unconditionally; monotonicity is the
// caller's write-guard, not a store feature.
func (s *Store) SetMaxProgress(ctx context.Context, postID string, value float64) {
	raw := strconv.FormatFloat(value, 'f', -1, 64)
	if err := s.client.Set(ctx, maxProgressKey(postID), raw, RecordTTL).Err(); err != nil {
		s.writeFailed("maxProgress", postID, err)
	}
}

// GetCompleted returns the media ids marked done for the post, in completion
// order.
func (s *Store) GetCompleted(ctx context.Context, postID string) []string {
	data, err := s.client.Get(ctx, completedKey(postID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.readFailed("completed", postID, err)
		}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		s.readFailed("completed", postID, err)
		return nil
	}
	return ids
}

// MarkCompleted appends the media id to the completed set. Idempotent.
func (s *Store) MarkCompleted(ctx context.Context, postID, mediaID string) {
	ids := s.GetCompleted(ctx, postID)
	if slices.Contains(ids, mediaID) {
		return
	}
	ids = append(ids, mediaID)
	data, err := json.Marshal(ids)
	if err != nil {
		s.writeFailed("completed", postID, err)
		return
	}
	if err := s.client.Set(ctx, completedKey(postID), data, RecordTTL).Err(); err != nil {
		s.writeFailed("completed", postID, err)
	}
}

// SetResult caches the serialised item result so later attempts can reuse it
// verbatim.
func (s *Store) SetResult(ctx context.Context, postID, mediaID string, result json.RawMessage) {
	if err := s.client.Set(ctx, resultKey(postID, mediaID), []byte(result), RecordTTL).Err(); err != nil {
		s.writeFailed("mediaResult", postID, err)
	}
}

// GetResult returns the cached item result, or nil when absent.
func (s *Store) GetResult(ctx context.Context, postID, mediaID string) json.RawMessage {
	data, err := s.client.Get(ctx, resultKey(postID, mediaID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.readFailed("mediaResult", postID, err)
		}
		return nil
	}
	return json.RawMessage(data)
}

// GetAllResults returns the cached results in completion order.
func (s *Store) GetAllResults(ctx context.Context, postID string) []json.RawMessage {
	var results []json.RawMessage
	for _, mediaID := range s.GetCompleted(ctx, postID) {
		if result := s.GetResult(ctx, postID, mediaID); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// SnapshotProgress writes the observer-facing progress record.
func (s *Store) SnapshotProgress(ctx context.Context, postID string, snapshot domain.ProgressSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.writeFailed("progress", postID, err)
		return
	}
	if err := s.client.Set(ctx, snapshotKey(postID), data, RecordTTL).Err(); err != nil {
		s.writeFailed("progress", postID, err)
	}
}

func (s *Store) readFailed(key, postID string, err error) {
	metrics.ProgressStoreErrors.Inc()
	s.logger.Warn("progress store read failed, using default",
		slog.String("key", key),
		slog.String("postId", postID),
		slog.String("error", err.Error()),
	)
}

func (s *Store) writeFailed(key, postID string, err error) {
	metrics.ProgressStoreErrors.Inc()
	s.logger.Warn("progress store write failed, progress is a hint",
		slog.String("key", key),
		slog.String("postId", postID),
		slog.String("error", err.Error()),
	)
}
