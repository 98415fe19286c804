package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps files in an S3 bucket. Calls go through a circuit breaker so
// an unavailable bucket fails requests fast instead of holding them open.
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	breaker *gobreaker.CircuitBreaker[any]
	log     *zap.Logger
}

func NewS3Store(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, cfg, log), nil
}

func NewS3StoreWithClient(client S3API, cfg config.StorageConfig, log *zap.Logger) *S3Store {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	st := gobreaker.Settings{
		Name:    "storage-s3",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A missing object is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("storage circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.S3Bucket,
		prefix:  strings.Trim(cfg.S3Prefix, "/"),
		breaker: gobreaker.NewCircuitBreaker[any](st),
		log:     log,
	}
}

func (s *S3Store) key(p string) string {
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func (s *S3Store) Put(ctx context.Context, namespace, name string, r io.Reader, size int64, contentType string) (string, error) {
	p, err := objectPath(namespace, name)
	if err != nil {
		return "", err
	}

	_, err = s.breaker.Execute(func() (any, error) {
		in := &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(p)),
			Body:   r,
		}
		if size > 0 {
			in.ContentLength = aws.Int64(size)
		}
		if contentType != "" {
			in.ContentType = aws.String(contentType)
		}
		return s.client.PutObject(ctx, in)
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", p, err)
	}
	return p, nil
}

func (s *S3Store) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	out, err := s.breaker.Execute(func() (any, error) {
		obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(cleaned)),
		})
		if err != nil {
			return nil, translateS3Error(err)
		}
		return obj.Body, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", p, err)
	}
	return out.(io.ReadCloser), nil
}

func (s *S3Store) Exists(ctx context.Context, p string) (bool, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return false, err
	}

	_, err = s.breaker.Execute(func() (any, error) {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(cleaned)),
		})
		return nil, translateS3Error(err)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("s3 head %s: %w", p, err)
	}
}

func (s *S3Store) Delete(ctx context.Context, p string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (any, error) {
		return s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(cleaned)),
		})
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", p, err)
	}
	return nil
}

func translateS3Error(err error) error {
	if err == nil {
		return nil
	}
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	return err
}
