package gcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/gritsync/gritsync-backend/pkg/config"
	"github.com/gritsync/gritsync-backend/pkg/logger"
)

const pingTimeout = 5 * time.Second

// ErrObjectNotFound is returned when the requested object is absent from the bucket.
var ErrObjectNotFound = errors.New("gcs object not found")

// ObjectInfo is the metadata callers need about an uploaded object.
type ObjectInfo struct {
	Bucket      string
	Name        string
	Size        int64
	ContentType string
	Created     time.Time
}

type attrsFunc func(ctx context.Context, bucket, object string) (*storage.ObjectAttrs, error)

type bucketAttrsFunc func(ctx context.Context, bucket string) error

// Client wraps the Cloud Storage SDK for the proofs bucket.
type Client struct {
	sdk           *storage.Client
	defaultBucket string
	objectAttrs   attrsFunc
	bucketAttrs   bucketAttrsFunc
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ProofsBucket) == "" {
		return nil, errors.New("gcs proofs bucket is required")
	}

	sdk, err := storage.NewClient(ctx, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	client := &Client{
		sdk:           sdk,
		defaultBucket: strings.TrimSpace(cfg.ProofsBucket),
		objectAttrs: func(ctx context.Context, bucket, object string) (*storage.ObjectAttrs, error) {
			return sdk.Bucket(bucket).Object(object).Attrs(ctx)
		},
		bucketAttrs: func(ctx context.Context, bucket string) error {
			_, err := sdk.Bucket(bucket).Attrs(ctx)
			return err
		},
	}

	if err := client.Ping(ctx); err != nil {
		_ = sdk.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}

	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error {
	if c == nil || c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.bucketAttrs == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.bucketAttrs(ctx, c.defaultBucket); err != nil {
		return fmt.Errorf("bucket %q: %w", c.defaultBucket, err)
	}
	return nil
}

// Stat returns metadata for an object in the proofs bucket.
func (c *Client) Stat(ctx context.Context, object string) (*ObjectInfo, error) {
	if c == nil || c.objectAttrs == nil {
		return nil, errors.New("gcs client not initialized")
	}
	name := NormalizeObjectPath(object)
	if name == "" {
		return nil, errors.New("object path is required")
	}
	attrs, err := c.objectAttrs(ctx, c.defaultBucket, name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	return &ObjectInfo{
		Bucket:      attrs.Bucket,
		Name:        attrs.Name,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Created:     attrs.Created,
	}, nil
}

// NormalizeObjectPath strips leading slashes and a gs://<bucket>/ prefix.
func NormalizeObjectPath(path string) string {
	p := strings.TrimSpace(path)
	if strings.HasPrefix(p, "gs://") {
		rest := strings.TrimPrefix(p, "gs://")
		if idx := strings.Index(rest, "/"); idx >= 0 {
			p = rest[idx+1:]
		} else {
			p = ""
		}
	}
	return strings.TrimLeft(p, "/")
}
