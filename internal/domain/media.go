package domain

import "strings"

type MediaType string

const (
	MediaTypeImage MediaType = "IMAGE"
	MediaTypeVideo MediaType = "VIDEO"
)

// MediaItem is one video or image file within a post.
type MediaItem struct {
	ID           string    `json:"id"`
	Type         MediaType `json:"type"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	// Height is the source vertical resolution in pixels. It determines the
	// rendition ceiling for videos and is unused for images.
	Height int `json:"height"`
}

// Job groups the media items of a single logical post. PostID is stable
// across retries of the same request; Attempt is the broker-supplied
// 1-based ordinal of this delivery.
type Job struct {
	PostID      string      `json:"postId"`
	Media       []MediaItem `json:"media"`
	S3Key       string      `json:"s3Key"`
	UserID      string      `json:"userId"`
	CallbackURL string      `json:"callbackUrl"`
	Attempt     int         `json:"-"`
}

// Validate rejects malformed jobs before any state is written.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.PostID) == "" {
		return ErrMissingPostID
	}
	if len(j.Media) == 0 {
		return ErrEmptyMedia
	}
	for _, item := range j.Media {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Filename) == "" {
			return ErrInvalidMediaItem
		}
		if item.Type != MediaTypeImage && item.Type != MediaTypeVideo {
			return ErrInvalidMediaItem
		}
	}
	return nil
}

const ResultStatusSuccess = "success"

// VideoResult is the per-item outcome for a video. URL fields are pointers
// so a derivation stage that failed non-fatally marshals as null.
type VideoResult struct {
	MediaID           string    `json:"mediaId"`
	OriginalName      string    `json:"originalName"`
	Filename          string    `json:"filename"`
	MediaType         MediaType `json:"mediaType"`
	Status            string    `json:"status"`
	MasterPlaylistURL *string   `json:"masterPlaylistUrl"`
	ThumbnailURL      *string   `json:"thumbnailUrl"`
}

// ImageResult is the per-item outcome for an image.
type ImageResult struct {
	MediaID             string    `json:"mediaId"`
	OriginalName        string    `json:"originalName"`
	Filename            string    `json:"filename"`
	MediaType           MediaType `json:"mediaType"`
	Status              string    `json:"status"`
	OriginalURL         *string   `json:"originalUrl"`
	ImageURL            *string   `json:"imageUrl"`
	BlurredThumbnailURL *string   `json:"blurredThumbnailUrl"`
}

type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailed     JobStatus = "failed"
)
