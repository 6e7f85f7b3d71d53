package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zstd"
)

const numBlobRetries = 3

// ObjectClient is the subset of *s3.Client the blob store needs.
type ObjectClient interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// BlobParams ...
type BlobParams struct {
	Bucket          string
	Region          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	LocalPart       string
	CacheName       string
}

// Key is the object key of the cache: <prefix>/<user>/<cacheName>.zst
func (p BlobParams) Key() string {
	return path.Join(p.Prefix, p.LocalPart, p.CacheName) + ".zst"
}

// BlobStore keeps the cache as a zstd-compressed S3 object, one folder per user.
type BlobStore struct {
	client    ObjectClient
	bucket    string
	key       string
	retryWait time.Duration
	logger    log.Logger
}

// NewBlobStore resolves AWS credentials (static keys when given, the default chain otherwise).
func NewBlobStore(ctx context.Context, params BlobParams, logger log.Logger) (*BlobStore, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := params.awsConfig(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewBlobStoreWithClient(s3.NewFromConfig(cfg), params.Bucket, params.Key(), logger), nil
}

// NewBlobStoreWithClient ...
func NewBlobStoreWithClient(client ObjectClient, bucket, key string, logger log.Logger) *BlobStore {
	return &BlobStore{
		client:    client,
		bucket:    bucket,
		key:       key,
		retryWait: 5 * time.Second,
		logger:    logger,
	}
}

// Load downloads and decompresses the cache. A missing object is ErrCacheMiss.
func (s *BlobStore) Load(ctx context.Context) ([]byte, error) {
	var compressed []byte
	err := retry.Times(numBlobRetries).Wait(s.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NoSuchKey, *types.NotFound:
					return ErrCacheMiss, true
				}
			}
			s.logger.Debugf("get %s (attempt %d): %s", s.key, attempt+1, err)
			return fmt.Errorf("get object: %w", err), false
		}
		defer result.Body.Close() //nolint:errcheck

		compressed, err = io.ReadAll(result.Body)
		if err != nil {
			return fmt.Errorf("read object content: %w", err), false
		}
		return nil, true
	})
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress token cache: %w", err)
	}

	s.logger.Debugf("Token cache loaded from s3://%s/%s", s.bucket, s.key)
	return data, nil
}

// Save compresses data and overwrites the cache object.
func (s *BlobStore) Save(ctx context.Context, data []byte) error {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := encoder.EncodeAll(data, nil)
	if err := encoder.Close(); err != nil {
		return err
	}

	uploader := manager.NewUploader(s.client)
	return retry.Times(numBlobRetries).Wait(s.retryWait).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Body:            bytes.NewReader(compressed),
			Bucket:          aws.String(s.bucket),
			Key:             aws.String(s.key),
			ContentType:     aws.String("application/zstd"),
			ContentLength:   aws.Int64(int64(len(compressed))),
			ContentEncoding: aws.String("zstd"),
		})
		if err != nil {
			s.logger.Debugf("put %s (attempt %d): %s", s.key, attempt+1, err)
			return fmt.Errorf("upload token cache: %w", err), false
		}

		s.logger.Debugf("Token cache written to s3://%s/%s", s.bucket, s.key)
		return nil, true
	})
}

// awsConfig builds the SDK configuration for the cache bucket. Static keys must be given together;
// without them the default credential chain applies.
func (p BlobParams) awsConfig(ctx context.Context, logger log.Logger) (aws.Config, error) {
	if p.Region == "" {
		return aws.Config{}, fmt.Errorf("region must not be empty for bucket %s", p.Bucket)
	}
	if (p.AccessKeyID == "") != (p.SecretAccessKey == "") {
		return aws.Config{}, fmt.Errorf("access key ID and secret access key must be set together")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(p.Region)}
	if p.AccessKeyID != "" {
		logger.Debugf("Using static credentials for s3://%s", p.Bucket)
		provider := credentials.NewStaticCredentialsProvider(p.AccessKeyID, p.SecretAccessKey, "")
		opts = append(opts, config.WithCredentialsProvider(provider))
	} else {
		logger.Debugf("Using the default credential chain for s3://%s", p.Bucket)
	}

	return config.LoadDefaultConfig(ctx, opts...)
}
