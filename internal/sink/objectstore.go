package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreSettings describe an S3-compatible bucket.
type ObjectStoreSettings struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// Validate reports the first missing required setting.
func (o ObjectStoreSettings) Validate() error {
	switch {
	case o.Endpoint == "":
		return errors.New("object store endpoint is required")
	case o.Bucket == "":
		return errors.New("object store bucket is required")
	case o.AccessKey == "" || o.SecretKey == "":
		return errors.New("object store access and secret keys are required")
	}
	return nil
}

// bucketClient is the subset of *minio.Client the sink needs.
type bucketClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectStoreSink uploads the report JSON to <prefix>/<target>/<report id>.json.
type ObjectStoreSink struct {
	settings ObjectStoreSettings
	client   bucketClient

	mu          sync.Mutex
	bucketReady bool
}

// NewObjectStore builds a minio client. No network traffic happens until the first delivery.
func NewObjectStore(settings ObjectStoreSettings) (*ObjectStoreSink, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	cli, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.UseSSL,
		Region: settings.Region,
	})
	if err != nil {
		return nil, err
	}
	return &ObjectStoreSink{settings: settings, client: cli}, nil
}

func (s *ObjectStoreSink) Name() string { return "objectstore" }

// ObjectKey returns the key a report for target is stored under.
func (s *ObjectStoreSink) ObjectKey(target, reportID string) string {
	return path.Join(strings.Trim(s.settings.Prefix, "/"), sanitizeKey(target), reportID+".json")
}

func (s *ObjectStoreSink) Deliver(ctx context.Context, d Delivery) error {
	if err := s.ensureBucket(ctx); err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}

	data, err := json.MarshalIndent(d.Report, "", "  ")
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}

	key := s.ObjectKey(d.Target, d.Report.ID())
	_, err = s.client.PutObject(ctx, s.settings.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"target":   d.Target,
			"critical": fmt.Sprint(d.Summary.Critical()),
			"high":     fmt.Sprint(d.Summary.High()),
		},
	})
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: fmt.Errorf("put %s/%s: %w", s.settings.Bucket, key, err)}
	}
	return nil
}

func (s *ObjectStoreSink) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.settings.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.settings.Bucket, minio.MakeBucketOptions{Region: s.settings.Region}); err != nil {
			return err
		}
	}
	s.bucketReady = true
	return nil
}

// sanitizeKey turns an image reference such as registry:5000/team/app:1.0 into a single
// key segment.
func sanitizeKey(target string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", "@", "_", " ", "_")
	key := replacer.Replace(strings.TrimSpace(target))
	if key == "" {
		return "unnamed"
	}
	return key
}
