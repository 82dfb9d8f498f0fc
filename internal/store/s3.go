package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"repolens/internal/artifact"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3Store keeps analyses as JSON objects under <prefix>/<user>/<url hash>.json.
// It holds documents only; pair it with a CounterStore through Combine.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string

	initMu    sync.Mutex
	initReady bool
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "analyses"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
		prefix:     prefix,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initReady {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), setupTimeout)
	defer cancel()
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return err
		}
	}
	s.initReady = true
	return nil
}

func (s *S3Store) objectKey(repoURL, userID string) string {
	u, id := normalizeKey(repoURL, userID)
	if id == "" {
		id = "_anonymous"
	}
	return s.prefix + "/" + id + "/" + urlHash(u) + ".json"
}

func (s *S3Store) Put(ctx context.Context, repoURL, userID string, doc artifact.CompositeAnalysis) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucketName, s.objectKey(repoURL, userID), bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (s *S3Store) Get(ctx context.Context, repoURL, userID string) (artifact.CompositeAnalysis, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return artifact.CompositeAnalysis{}, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, s.objectKey(repoURL, userID), minio.GetObjectOptions{})
	if err != nil {
		return artifact.CompositeAnalysis{}, s.mapErr(err, repoURL, userID)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return artifact.CompositeAnalysis{}, s.mapErr(err, repoURL, userID)
	}
	var doc artifact.CompositeAnalysis
	if err := json.Unmarshal(raw, &doc); err != nil {
		return artifact.CompositeAnalysis{}, fmt.Errorf("decode analysis %s: %w", repoURL, err)
	}
	return doc, nil
}

func (s *S3Store) mapErr(err error, repoURL, userID string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return errNotFound(repoURL, userID)
	}
	return err
}
