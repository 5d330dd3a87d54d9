package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/radiology-ops/pkg/logging"
)

var (
	// ErrNotConfigured is returned when no archive destination is set.
	ErrNotConfigured = errors.New("archive: not configured")

	// ErrObjectNotFound is returned when an archive key does not exist.
	ErrObjectNotFound = errors.New("archive: object not found")
)

var labelUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// Sink stores and retrieves archive files.
type Sink interface {
	Put(ctx context.Context, label string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes archive files to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, Put and Get return
// ErrNotConfigured.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string {
	return s.bucket
}

// Put uploads data under a dated key built from label and returns the key.
func (s *Store) Put(ctx context.Context, label string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}
	key := ObjectKey(cleanLabel(label), s.now())
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archive written to S3", "bucket", s.bucket, "s3_key", key, "bytes", len(data))
	return key, nil
}

// Get downloads one archive file.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("archive: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}

// DirStore keeps archive files under a local directory, for development
// setups without S3.
type DirStore struct {
	root string
	now  func() time.Time
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root, now: func() time.Time { return time.Now().UTC() }}
}

func (d *DirStore) Put(_ context.Context, label string, data []byte) (string, error) {
	key := ObjectKey(cleanLabel(label), d.now())
	path := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("archive: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("archive: write %s: %w", key, err)
	}
	return key, nil
}

func (d *DirStore) Get(_ context.Context, key string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	data, err := os.ReadFile(filepath.Join(d.root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func cleanLabel(label string) string {
	label = labelUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "-")
	label = strings.Trim(label, "-")
	if label == "" {
		return "export"
	}
	return label
}
