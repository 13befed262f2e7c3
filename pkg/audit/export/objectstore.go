package export

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mercator-hq/ganymede/pkg/audit"
)

// ObjectStoreConfig configures an S3-compatible archive target.
type ObjectStoreConfig struct {
	// Endpoint is the object store host:port, without scheme.
	Endpoint string

	// AccessKey and SecretKey are static credentials.
	AccessKey string
	SecretKey string

	// UseSSL enables TLS for the connection.
	UseSSL bool

	// Region is the bucket region. Optional for MinIO deployments.
	Region string

	// Bucket is the target bucket for archived decision batches.
	Bucket string

	// Prefix is prepended to every object key. Optional.
	Prefix string
}

// Validate checks that the required connection fields are set.
func (c *ObjectStoreConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("object store endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("object store credentials are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("object store bucket is required")
	}
	return nil
}

// ObjectArchiver uploads exported decision batches to an S3-compatible
// object store. Batches are serialized as JSON arrays, one object per
// archive call.
type ObjectArchiver struct {
	client   *minio.Client
	config   *ObjectStoreConfig
	exporter *JSONExporter
}

// NewObjectArchiver creates an archiver for the configured bucket.
func NewObjectArchiver(config *ObjectStoreConfig) (*ObjectArchiver, error) {
	if config == nil {
		return nil, fmt.Errorf("object store config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure:    config.UseSSL,
		Region:    config.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &ObjectArchiver{
		client:   client,
		config:   config,
		exporter: NewJSONExporter(false),
	}, nil
}

// EnsureBucket creates the archive bucket if it does not already exist.
func (a *ObjectArchiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.config.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists check failed: %w", err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.config.Bucket, minio.MakeBucketOptions{Region: a.config.Region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.config.Bucket, err)
	}
	return nil
}

// Archive uploads a batch of decisions as a single JSON object and
// returns the object key.
func (a *ObjectArchiver) Archive(ctx context.Context, decisions []*audit.Decision) (string, error) {
	if len(decisions) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	if err := a.exporter.Export(ctx, decisions, &buf); err != nil {
		return "", err
	}

	key := a.objectKey(time.Now().UTC())
	_, err := a.client.PutObject(ctx, a.config.Bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", audit.NewExportError("objectstore", len(decisions), err)
	}

	return key, nil
}

// objectKey builds the key for an archive batch uploaded at t.
func (a *ObjectArchiver) objectKey(t time.Time) string {
	name := fmt.Sprintf("decisions-%s.json", t.Format("2006-01-02-150405"))
	if a.config.Prefix == "" {
		return name
	}
	return path.Join(a.config.Prefix, name)
}

// newTransport returns an HTTP transport tuned for object store uploads.
func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
