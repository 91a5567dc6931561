package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/executor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCommands is an in-memory stand-in for the redis list and counter ops
// the consumer issues, answering with the client's own result constructors.
type fakeCommands struct {
	mu       sync.Mutex
	lists    map[string][]string
	counters map[string]int64
	// dropCounterOnIncr simulates the attempt counter expiring right after
	// the INCR that started the attempt.
	dropCounterOnIncr bool
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		lists:    map[string][]string{},
		counters: map[string]int64{},
	}
}

func (f *fakeCommands) BLMove(_ context.Context, source, destination, _, _ string, _ time.Duration) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.lists[source]
	if len(src) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	val := src[0]
	f.lists[source] = src[1:]
	f.lists[destination] = append(f.lists[destination], val)
	return redis.NewStringResult(val, nil)
}

func (f *fakeCommands) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append([]string{v.(string)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeCommands) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append(f.lists[key], v.(string))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeCommands) LRem(_ context.Context, key string, _ int64, value interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	kept := f.lists[key][:0]
	for _, v := range f.lists[key] {
		if removed == 0 && v == value.(string) {
			removed++
			continue
		}
		kept = append(kept, v)
	}
	f.lists[key] = kept
	return redis.NewIntResult(removed, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	n := f.counters[key]
	if f.dropCounterOnIncr {
		delete(f.counters, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeCommands) Decr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]--
	return redis.NewIntResult(f.counters[key], nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.counters[key]; ok {
			delete(f.counters, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeCommands) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.counters[key]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeCommands) Expire(_ context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) list(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists[key]...)
}

func (f *fakeCommands) counter(key string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.counters[key]
	return n, ok
}

type scriptedRunner struct {
	err      error
	calls    int
	attempts []int
}

func (r *scriptedRunner) Execute(_ context.Context, job *domain.Job) (*executor.Outcome, error) {
	r.calls++
	r.attempts = append(r.attempts, job.Attempt)
	if r.err != nil {
		return nil, r.err
	}
	return &executor.Outcome{PostID: job.PostID, Status: domain.JobStatusSuccess}, nil
}

func queuePayload(t *testing.T) string {
	t.Helper()
	job := domain.Job{
		PostID: "p1",
		Media: []domain.MediaItem{
			{ID: "m1", Type: domain.MediaTypeVideo, Filename: "clip.mp4", Height: 720},
		},
		S3Key: "posts/p1/",
	}
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func popped(t *testing.T, c *Consumer, f *fakeCommands, payload string) {
	t.Helper()
	// handle assumes the payload already sits on the active list.
	f.lists[c.activeList()] = append(f.lists[c.activeList()], payload)
}

func TestHandleSuccessAcksAndClearsAttempts(t *testing.T) {
	f := newFakeCommands()
	runner := &scriptedRunner{}
	c := NewConsumer(f, runner, testLogger(), "media-processing", 1, 3)
	payload := queuePayload(t)
	popped(t, c, f, payload)

	c.handle(context.Background(), payload)

	if runner.calls != 1 || runner.attempts[0] != 1 {
		t.Fatalf("runner calls %d attempts %v", runner.calls, runner.attempts)
	}
	if got := f.list(c.activeList()); len(got) != 0 {
		t.Fatalf("active list not acked: %v", got)
	}
	if _, ok := f.counter(attemptsKey("p1")); ok {
		t.Fatal("attempt counter not cleared on success")
	}
	if got := f.list("media-processing"); len(got) != 0 {
		t.Fatalf("success requeued the job: %v", got)
	}
}

func TestHandleFailureRequeuesToTail(t *testing.T) {
	f := newFakeCommands()
	runner := &scriptedRunner{err: errors.New("encode blew up")}
	c := NewConsumer(f, runner, testLogger(), "media-processing", 1, 3)
	payload := queuePayload(t)
	popped(t, c, f, payload)
	f.lists["media-processing"] = []string{"other-job"}

	c.handle(context.Background(), payload)

	want := []string{"other-job", payload}
	got := f.list("media-processing")
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("queue after requeue %v, want %v", got, want)
	}
	if got := f.list(c.activeList()); len(got) != 0 {
		t.Fatalf("active list not acked: %v", got)
	}
	if n, _ := f.counter(attemptsKey("p1")); n != 1 {
		t.Fatalf("attempt counter %d, want 1 kept for the retry", n)
	}
	if got := f.list(c.deadList()); len(got) != 0 {
		t.Fatalf("dead-lettered before max attempts: %v", got)
	}
}

func TestHandleDeadLettersAfterMaxAttempts(t *testing.T) {
	f := newFakeCommands()
	runner := &scriptedRunner{err: errors.New("encode blew up")}
	c := NewConsumer(f, runner, testLogger(), "media-processing", 1, 3)
	payload := queuePayload(t)
	popped(t, c, f, payload)
	f.counters[attemptsKey("p1")] = 2

	c.handle(context.Background(), payload)

	if runner.attempts[0] != 3 {
		t.Fatalf("attempt %d, want 3", runner.attempts[0])
	}
	if got := f.list(c.deadList()); len(got) != 1 || got[0] != payload {
		t.Fatalf("dead list %v", got)
	}
	if got := f.list("media-processing"); len(got) != 0 {
		t.Fatalf("exhausted job requeued: %v", got)
	}
	if _, ok := f.counter(attemptsKey("p1")); ok {
		t.Fatal("attempt counter not cleared after dead-letter")
	}
	if got := f.list(c.activeList()); len(got) != 0 {
		t.Fatalf("active list not acked: %v", got)
	}
}

func TestHandleShutdownRequeuesHeadAndUnwindsAttempt(t *testing.T) {
	f := newFakeCommands()
	runner := &scriptedRunner{err: context.Canceled}
	c := NewConsumer(f, runner, testLogger(), "media-processing", 1, 3)
	payload := queuePayload(t)
	popped(t, c, f, payload)
	f.lists["media-processing"] = []string{"other-job"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.handle(ctx, payload)

	got := f.list("media-processing")
	if len(got) != 2 || got[0] != payload {
		t.Fatalf("queue after shutdown %v, want the job back at the head", got)
	}
	if n, _ := f.counter(attemptsKey("p1")); n != 0 {
		t.Fatalf("attempt counter %d, want the INCR unwound to 0", n)
	}
	if got := f.list(c.deadList()); len(got) != 0 {
		t.Fatalf("shutdown dead-lettered the job: %v", got)
	}
	if got := f.list(c.activeList()); len(got) != 0 {
		t.Fatalf("active list not acked: %v", got)
	}
}

func TestHandleShutdownSkipsDecrWhenCounterExpired(t *testing.T) {
	f := newFakeCommands()
	f.dropCounterOnIncr = true
	runner := &scriptedRunner{err: context.Canceled}
	c := NewConsumer(f, runner, testLogger(), "media-processing", 1, 3)
	payload := queuePayload(t)
	popped(t, c, f, payload)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.handle(ctx, payload)

	if n, ok := f.counter(attemptsKey("p1")); ok {
		t.Fatalf("expired counter recreated at %d", n)
	}
}

func TestHandleUndecodablePayloadDeadLetters(t *testing.T) {
	f := newFakeCommands()
	runner := &scriptedRunner{}
	c := NewConsumer(f, runner, testLogger(), "media-processing", 1, 3)
	popped(t, c, f, "{not json")

	c.handle(context.Background(), "{not json")

	if runner.calls != 0 {
		t.Fatal("undecodable payload reached the executor")
	}
	if got := f.list(c.deadList()); len(got) != 1 {
		t.Fatalf("dead list %v", got)
	}
	if got := f.list(c.activeList()); len(got) != 0 {
		t.Fatalf("active list not acked: %v", got)
	}
}

func TestJobPayloadDecode(t *testing.T) {
	payload := `{
		"postId": "p1",
		"s3Key": "posts/p1/",
		"userId": "u1",
		"callbackUrl": "https://app.test/callback",
		"media": [
			{"id": "m1", "type": "VIDEO", "filename": "clip.mp4", "originalName": "Clip.mp4", "height": 1080},
			{"id": "m2", "type": "IMAGE", "filename": "photo.jpg", "originalName": "Photo.jpg"}
		],
		"unknownField": true
	}`

	var job domain.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if err := job.Validate(); err != nil {
		t.Fatalf("decoded job invalid: %v", err)
	}
	if job.PostID != "p1" || job.CallbackURL != "https://app.test/callback" {
		t.Fatalf("job %+v", job)
	}
	if len(job.Media) != 2 || job.Media[0].Height != 1080 || job.Media[1].Type != domain.MediaTypeImage {
		t.Fatalf("media %+v", job.Media)
	}
	// Attempt is broker state, never part of the payload.
	if job.Attempt != 0 {
		t.Fatalf("attempt decoded from payload: %d", job.Attempt)
	}
}

func TestCleanupPayloadDecode(t *testing.T) {
	var job CleanupJob
	if err := json.Unmarshal([]byte(`{"postId":"p1","s3Key":"posts/p1/"}`), &job); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if job.PostID != "p1" || job.S3Key != "posts/p1/" {
		t.Fatalf("job %+v", job)
	}
}

func TestQueueKeyNames(t *testing.T) {
	c := NewConsumer(newFakeCommands(), nil, nil, "media-processing", 0, 0)
	if c.activeList() != "media-processing:active" {
		t.Fatalf("active list %q", c.activeList())
	}
	if c.deadList() != "media-processing:dead" {
		t.Fatalf("dead list %q", c.deadList())
	}
	if got := attemptsKey("p1"); got != "attempts:p1" {
		t.Fatalf("attempts key %q", got)
	}
	if c.maxAttempts != 1 {
		t.Fatalf("maxAttempts clamp %d, want 1", c.maxAttempts)
	}
}
