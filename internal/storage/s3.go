package storage

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"git.home.luguber.info/inful/fwbuilder/internal/config"
	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

const archiveContentType = "application/zip"

// objectPutter is the subset of the S3 client used for publishing.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher uploads archives to an S3-compatible bucket.
type S3Publisher struct {
	client objectPutter
	cfg    config.S3Config
}

// NewS3Publisher creates a publisher using static credentials when they are
// configured and the SDK's anonymous credentials otherwise.
func NewS3Publisher(cfg config.S3Config) *S3Publisher {
	awsCfg := aws.Config{Region: cfg.Region}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	} else {
		awsCfg.Credentials = aws.AnonymousCredentials{}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Publisher{client: client, cfg: cfg}
}

// Publish uploads the file at path under key (prefixed by the configured
// prefix) and returns its URL.
func (p *S3Publisher) Publish(ctx context.Context, key, path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path is the packager's own archive
	if err != nil {
		return "", errors.StorageError("failed to open archive for upload").
			WithCause(err).
			WithContext("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", errors.StorageError("failed to stat archive").WithCause(err).WithContext("path", path).Build()
	}

	objectKey := p.cfg.Prefix + key
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(archiveContentType),
	})
	if err != nil {
		return "", errors.StorageError("failed to upload archive").
			WithCause(err).
			WithContext("bucket", p.cfg.Bucket).
			WithContext("key", objectKey).
			Build()
	}

	url := p.ObjectURL(objectKey)
	slog.Info("Published archive", logfields.Path(path), logfields.URL(url), logfields.Bytes(int(info.Size())))
	return url, nil
}

// ObjectURL returns the retrieval URL for a full object key.
func (p *S3Publisher) ObjectURL(objectKey string) string {
	switch {
	case p.cfg.PublicURL != "":
		return strings.TrimRight(p.cfg.PublicURL, "/") + "/" + objectKey
	case p.cfg.Endpoint != "" && p.cfg.UsePathStyle:
		return strings.TrimRight(p.cfg.Endpoint, "/") + "/" + p.cfg.Bucket + "/" + objectKey
	default:
		return "s3://" + p.cfg.Bucket + "/" + objectKey
	}
}
