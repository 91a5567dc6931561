package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMissingPostID    = errors.New("post id is required")
	ErrEmptyMedia       = errors.New("job has no media items")
	ErrInvalidMediaItem = errors.New("invalid media item")

	// ErrEncoderFailed marks a non-zero encoder exit.
	ErrEncoderFailed = errors.New("encoder failed")
	// ErrEncoderUnavailable marks a failure to spawn the encoder process.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	// ErrMasterPlaylistMissing marks a video item whose master playlist
	// was not produced; the item yields no result.
	ErrMasterPlaylistMissing = errors.New("master playlist missing")

	// ErrTransientIO marks a network-level download/upload failure; the
	// broker retries the attempt per its policy.
	ErrTransientIO = errors.New("transient io failure")
	// ErrBadResponse marks a non-2xx response from the blob store.
	ErrBadResponse = errors.New("bad response")
)

// EncoderError carries the exit code and trailing stderr of a failed
// encoder invocation. It wraps ErrEncoderFailed.
type EncoderError struct {
	Code       int
	StderrTail string
}

func (e *EncoderError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("encoder exited with code %d", e.Code)
	}
	return fmt.Sprintf("encoder exited with code %d: %s", e.Code, e.StderrTail)
}

func (e *EncoderError) Unwrap() error { return ErrEncoderFailed }
