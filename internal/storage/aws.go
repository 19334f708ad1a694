package storage

// The S3 store keeps each data object's content as one S3 object. The
// requester's credentials travel with every call as "ACCESS_KEY:SECRET_KEY"
// or "ACCESS_KEY:SECRET_KEY:SESSION_TOKEN"; the client itself is built with
// anonymous credentials so the proxy never falls back to its own identity.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	stoxyerr "github.com/stoxy/stoxy/internal/errors"
)

// S3API defines the subset of the AWS S3 client interface that the store
// uses. This allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ClientConfig configures the shared S3 client.
type S3ClientConfig struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// NewS3Client builds an S3 client with anonymous base credentials. Per-call
// credentials are applied by S3Backend.
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	slog.Info("S3 client initialized", "region", region, "endpoint", cfg.Endpoint, "path_style", cfg.UsePathStyle)
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// S3Backend stores one data object's content at Bucket/Key.
type S3Backend struct {
	Bucket    string
	Key       string
	ChunkSize int
	client    S3API
}

// NewS3Factory returns a factory for s3:// and s3+subscheme:// URIs.
func NewS3Factory(client S3API, profiles RemoteProfiles, chunkSize int) Factory {
	return func(target Target) (Store, error) {
		bucket, key, err := profiles.locate(target)
		if err != nil {
			return nil, err
		}
		return &S3Backend{Bucket: bucket, Key: key, ChunkSize: chunkSize, client: client}, nil
	}
}

// s3Credentials turns the request credentials into a per-call option.
func s3Credentials(creds string) (func(*s3.Options), error) {
	if err := requireCredentials(creds); err != nil {
		return nil, err
	}
	parts := strings.SplitN(creds, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, stoxyerr.ErrCredentialsRequired.WithMessage("S3 credentials must have the form ACCESS_KEY:SECRET_KEY[:SESSION_TOKEN]")
	}
	var session string
	if len(parts) == 3 {
		session = parts[2]
	}
	provider := credentials.NewStaticCredentialsProvider(parts[0], parts[1], session)
	return func(o *s3.Options) {
		o.Credentials = provider
	}, nil
}

func (b *S3Backend) where() string {
	return "s3://" + b.Bucket + "/" + b.Key
}

// Save spools the decoded input to disk and uploads it with a single
// PutObject, which needs a seekable body of known length.
func (b *S3Backend) Save(ctx context.Context, r io.Reader, encoding, creds string) error {
	withCreds, err := s3Credentials(creds)
	if err != nil {
		return err
	}
	sp, err := spool(ctx, r, encoding, b.ChunkSize)
	if err != nil {
		return err
	}
	defer sp.Close()

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.Bucket),
		Key:           aws.String(b.Key),
		Body:          sp,
		ContentLength: aws.Int64(sp.size),
	}, withCreds)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", b.where(), err)
	}
	return nil
}

// Load returns a reader that issues ranged GetObject calls on demand.
func (b *S3Backend) Load(ctx context.Context, creds string) (io.ReadSeekCloser, error) {
	withCreds, err := s3Credentials(creds)
	if err != nil {
		return nil, err
	}
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
	}, withCreds)
	if err != nil {
		if isAWSNotFound(err) {
			return nil, notFound(b.where())
		}
		return nil, fmt.Errorf("head %s: %w", b.where(), err)
	}

	open := func(ctx context.Context, offset int64) (io.ReadCloser, error) {
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.Bucket),
			Key:    aws.String(b.Key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-", offset)),
		}, withCreds)
		if err != nil {
			if isAWSNotFound(err) {
				return nil, notFound(b.where())
			}
			return nil, fmt.Errorf("downloading %s: %w", b.where(), err)
		}
		return out.Body, nil
	}
	return newRangeReader(ctx, aws.ToInt64(head.ContentLength), open, nil), nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is
// checked first to report missing content.
func (b *S3Backend) Delete(ctx context.Context, creds string) error {
	withCreds, err := s3Credentials(creds)
	if err != nil {
		return err
	}
	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
	}, withCreds)
	if err != nil {
		if isAWSNotFound(err) {
			return notFound(b.where())
		}
		return fmt.Errorf("head %s: %w", b.where(), err)
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
	}, withCreds)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", b.where(), err)
	}
	return nil
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" || code == "NoSuchBucket" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == 404 {
			return true
		}
	}
	return false
}

var _ Store = (*S3Backend)(nil)
