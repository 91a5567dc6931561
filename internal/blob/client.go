package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mediaqueue/internal/domain"
)

const downloadTimeout = 60 * time.Second

// Config carries the S3-compatible deployment settings.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// UploadedFile describes one object written by UploadDirectory.
type UploadedFile struct {
	OriginalName string
	Key          string
	URL          string
}

// Client is a thin wrapper over the blob store: signed-URL issuance, stream
// download, file upload and directory-sweep upload. It performs no retries;
// retry policy lives at the job-attempt level.
type Client struct {
	s3       *s3.Client
	presign  *s3.PresignClient
	http     *http.Client
	endpoint string
	bucket   string
	logger   *slog.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Client{
		s3:       s3Client,
		presign:  s3.NewPresignClient(s3Client),
		http: &http.Client{
			Timeout:   downloadTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		bucket:   cfg.Bucket,
		logger:   logger,
	}, nil
}

// SignedReadURL issues a presigned GET for the key.
func (c *Client) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// DownloadToFile streams the URL body to localPath, creating parent
// directories. Network failures map to the transient kind so the broker
// retries the attempt; any non-2xx status is a bad response.
func (c *Client) DownloadToFile(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadResponse, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isNetworkError(err) {
			return fmt.Errorf("%w: %v", domain.ErrTransientIO, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrBadResponse, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", domain.ErrBadResponse, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientIO, err)
	}
	return nil
}

// UploadFile puts the local file at key and returns the canonical public URL
// <endpoint>/<key>.
func (c *Client) UploadFile(ctx context.Context, localPath, key string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer file.Close()

	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentTypeFor(localPath)),
	})
	if err != nil {
		if isNetworkError(err) {
			return "", fmt.Errorf("%w: put %s: %v", domain.ErrTransientIO, key, err)
		}
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return c.PublicURL(key), nil
}

// UploadDirectory uploads every immediate child file of localDir as
// <destPrefix>/<filename> and returns the uploads in name order.
func (c *Client) UploadDirectory(ctx context.Context, localDir, destPrefix string) ([]UploadedFile, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	prefix := strings.TrimRight(destPrefix, "/")
	uploaded := make([]UploadedFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		key := prefix + "/" + name
		url, err := c.UploadFile(ctx, filepath.Join(localDir, name), key)
		if err != nil {
			return nil, err
		}
		uploaded = append(uploaded, UploadedFile{OriginalName: name, Key: key, URL: url})
	}
	return uploaded, nil
}

// PublicURL joins the endpoint and key. The bucket is never inserted into
// the path; path-style deployments already carry it in the endpoint.
func (c *Client) PublicURL(key string) string {
	return c.endpoint + "/" + strings.TrimLeft(key, "/")
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
