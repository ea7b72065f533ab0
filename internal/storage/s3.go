package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
)

// Config holds the S3 settings of the attachment store.
type Config struct {
	Bucket        string // S3 bucket name
	Prefix        string // Key prefix for all operations
	Region        string // AWS region (default: us-east-1)
	Endpoint      string // Custom endpoint for S3-compatible storage (MinIO, etc.)
	AccessKey     string // optional, default credential chain when empty
	SecretKey     string
	PresignExpiry time.Duration
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store writes chart attachments once and hands out presigned links to them.
type Store struct {
	client  objectAPI
	presign presignAPI
	config  Config
	logger  *logging.Logger
}

// New creates a Store backed by S3 or an S3-compatible endpoint.
func New(cfg Config, logger *logging.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: S3 bucket is required", models.ErrConfiguration)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Opts...)

	logger.WithFields(logging.Fields{
		"bucket":   cfg.Bucket,
		"prefix":   cfg.Prefix,
		"region":   cfg.Region,
		"endpoint": cfg.Endpoint,
	}).Info("S3 attachment store initialized")

	return newStore(client, s3.NewPresignClient(client), cfg, logger), nil
}

func newStore(client objectAPI, presign presignAPI, cfg Config, logger *logging.Logger) *Store {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 24 * time.Hour
	}
	return &Store{client: client, presign: presign, config: cfg, logger: logger}
}

func (s *Store) fullKey(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.config.Prefix, "/") + "/" + strings.TrimPrefix(key, "/")
}

// Put uploads data under key unless an object already exists there. Stored
// objects are never overwritten; an existing object counts as success.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	fullKey := s.fullKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.Bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		var status interface{ HTTPStatusCode() int }
		if errors.As(err, &status) && status.HTTPStatusCode() == http.StatusPreconditionFailed {
			s.logger.WithField("key", fullKey).Debug("Attachment already stored")
			return nil
		}
		return fmt.Errorf("%w: failed to upload %s: %v", models.ErrTransientTransport, fullKey, err)
	}

	s.logger.WithFields(logging.Fields{
		"bucket": s.config.Bucket,
		"key":    fullKey,
		"bytes":  len(data),
	}).Debug("Uploaded attachment")
	return nil
}

// PresignGet returns a time-limited download URL for key.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.fullKey(key)),
	}, s3.WithPresignExpires(s.config.PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned GET URL: %w", err)
	}
	return req.URL, nil
}

const (
	chartDir        = "bulletin_charts"
	timestampLayout = "20060102T150405.000Z"
)

// ChartKey builds the storage key of a rendered chart:
// bulletin_charts/<kind>_<periodStart>_<alertType>_<regionCode>_<timestamp>.png.
// Spaces in the alert type become hyphens and an empty region becomes "nocode".
func ChartKey(kind string, periodStart time.Time, alertType models.AlertType, regionCode string, ts time.Time) string {
	region := strings.TrimSpace(regionCode)
	if region == "" {
		region = models.NoRegionCode
	}
	return fmt.Sprintf("%s/%s_%s_%s_%s_%s.png",
		chartDir,
		kind,
		models.TruncateDate(periodStart).Format(models.DateLayout),
		strings.ReplaceAll(string(alertType), " ", "-"),
		region,
		ts.UTC().Format(timestampLayout),
	)
}
