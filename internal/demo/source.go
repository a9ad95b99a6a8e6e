package demo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source opens a demo by location.
type Source interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// FileSource opens demos from the local filesystem, relative to Dir when
// the location is not absolute.
type FileSource struct {
	Dir string
}

func (s FileSource) Open(_ context.Context, location string) (io.ReadCloser, error) {
	path := location
	if s.Dir != "" && !filepath.IsAbs(location) {
		path = filepath.Join(s.Dir, location)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open demo: %w", err)
	}
	return f, nil
}

// ObjectGetter is the part of the S3 client the demo source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source opens demos stored as s3://bucket/key objects.
type S3Source struct {
	client ObjectGetter
}

// NewS3Source wraps a client, usually s3.NewFromConfig(cfg).
func NewS3Source(client ObjectGetter) *S3Source {
	return &S3Source{client: client}
}

func (s *S3Source) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, ok := ParseS3URL(location)
	if !ok {
		return nil, fmt.Errorf("open demo: %q is not an s3://bucket/key url", location)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Router picks the S3 source for s3:// locations and Files otherwise.
type Router struct {
	Files Source
	S3    Source
}

func (r Router) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, "s3://") {
		if r.S3 == nil {
			return nil, fmt.Errorf("open demo %s: no s3 client configured", location)
		}
		return r.S3.Open(ctx, location)
	}
	files := r.Files
	if files == nil {
		files = FileSource{}
	}
	return files.Open(ctx, location)
}
