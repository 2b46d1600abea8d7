// Package screenshot keeps deposit proof images in object storage.
package screenshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/nkiryanov/walletledger/internal/apperrors"
)

const MaxSize = 5 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Validate sniffs the content and returns its mime type
// Declared type of the upload is not trusted
func Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.NewFieldError("screenshot", "is required")
	}
	if len(data) > MaxSize {
		return "", apperrors.NewFieldError("screenshot", "must not exceed 5MB")
	}

	contentType := http.DetectContentType(data)
	if _, ok := extensions[contentType]; !ok {
		return "", apperrors.NewFieldError("screenshot", "must be jpeg, png or webp")
	}
	return contentType, nil
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket string
	Region string

	// Custom endpoint for S3 compatible storages (minio, localstack)
	Endpoint string
}

// S3Store uploads screenshots to a bucket
type S3Store struct {
	client  objectPutter
	bucket  string
	baseURL string
	now     func() time.Time
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	if cfg.Endpoint != "" {
		baseURL = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}

	return newS3Store(client, cfg.Bucket, baseURL), nil
}

func newS3Store(client objectPutter, bucket string, baseURL string) *S3Store {
	return &S3Store{client: client, bucket: bucket, baseURL: baseURL, now: time.Now}
}

// Save validates and uploads the image, returns its URL
func (s *S3Store) Save(ctx context.Context, userID uuid.UUID, data []byte) (string, error) {
	contentType, err := Validate(data)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("deposits/%s/%s/%s%s", userID, s.now().UTC().Format("2006/01/02"), uuid.NewString(), extensions[contentType])

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload screenshot: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

// ReadLimited reads at most MaxSize+1 bytes so oversize uploads are detected without buffering them whole
func ReadLimited(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, MaxSize+1))
}
