package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"intake-portal/internal/shared/storage/object"
	"intake-portal/internal/shared/telemetry"
)

// Options configures the S3-compatible store. Containers map to buckets.
type Options struct {
	Region string
	// Endpoint targets an S3-compatible service (MinIO, Azurite S3 gateway); empty means AWS.
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
	KMSKeyID  string
}

// OptionsFromConnection maps a storage connection string onto Options.
func OptionsFromConnection(info object.ConnectionInfo, region, prefix string) Options {
	if info.Region != "" {
		region = info.Region
	}
	return Options{
		Region:    region,
		Endpoint:  info.Endpoint,
		AccessKey: info.AccountName,
		SecretKey: info.AccountKey,
		Prefix:    prefix,
	}
}

// Store implements object.Store using Amazon S3 or a compatible service.
type Store struct {
	client    *s3.Client
	presign   *s3.PresignClient
	prefix    string
	kmsKeyID  string
	sse       bool
	canSign   bool
	putObject func(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// New creates a new S3-backed object store. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain.
func New(ctx context.Context, opts Options) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	static := opts.AccessKey != "" && opts.SecretKey != ""
	if static {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	canSign := static
	if !canSign && cfg.Credentials != nil {
		if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
			telemetry.Warn("s3.credentials.unavailable", map[string]any{"error": err})
		} else {
			canSign = true
		}
	}

	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:    client,
		presign:   s3.NewPresignClient(client),
		prefix:    normalizePrefix(opts.Prefix),
		kmsKeyID:  strings.TrimSpace(opts.KMSKeyID),
		sse:       endpoint == "",
		canSign:   canSign,
		putObject: client.PutObject,
	}, nil
}

// Put uploads the reader contents to bucket=container, replacing any existing object.
func (s *Store) Put(ctx context.Context, container, key, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	bucket, objectKey, err := s.locate(container, key)
	if err != nil {
		return 0, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	counter := &countingReader{r: r}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(objectKey),
		Body:        counter,
		ContentType: aws.String(contentType),
	}
	switch {
	case s.kmsKeyID != "":
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	case s.sse:
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.putObject(ctx, input); err != nil {
		return 0, fmt.Errorf("s3 put object bucket=%s key=%s: %w", bucket, objectKey, err)
	}
	return counter.n, nil
}

// Open downloads a stored object for reading.
func (s *Store) Open(ctx context.Context, container, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bucket, objectKey, err := s.locate(container, key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", bucket, objectKey, mapNotFound(err))
	}
	return out.Body, nil
}

// Exists issues a HEAD request for the object.
func (s *Store) Exists(ctx context.Context, container, key string) (bool, error) {
	bucket, objectKey, err := s.locate(container, key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if errors.Is(mapNotFound(err), object.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head object bucket=%s key=%s: %w", bucket, objectKey, err)
	}
	return true, nil
}

// SignedURL presigns a GET for the object.
func (s *Store) SignedURL(ctx context.Context, container, key string, ttl time.Duration) (object.SignedURL, error) {
	if !s.canSign {
		return object.SignedURL{}, object.ErrSigningKeyUnavailable
	}
	bucket, objectKey, err := s.locate(container, key)
	if err != nil {
		return object.SignedURL{}, err
	}
	expiresAt := time.Now().Add(ttl).UTC().Truncate(time.Second)
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return object.SignedURL{}, fmt.Errorf("s3 presign bucket=%s key=%s: %w", bucket, objectKey, err)
	}
	blobName, _ := object.CleanKey(key)
	return object.SignedURL{
		URL:        req.URL,
		BlobName:   blobName,
		ExpiresAt:  expiresAt,
		Permission: object.PermissionRead,
	}, nil
}

func (s *Store) locate(container, key string) (string, string, error) {
	bucket, err := object.CleanContainer(container)
	if err != nil {
		return "", "", err
	}
	k, err := object.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return bucket, applyPrefix(s.prefix, k), nil
}

func mapNotFound(err error) error {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", object.ErrNotFound, err)
	}
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

var _ object.Store = (*Store)(nil)
