package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"safevoice/internal/common"
	"safevoice/internal/models"
)

// Config carries the object-storage settings for one authenticated user.
type Config struct {
	Region          string
	Endpoint        string // optional; set for MinIO-style deployments
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UserID          string
}

// s3API is the subset of the S3 client the store uses; tests substitute a
// fake. It also satisfies s3.ListObjectsV2APIClient for the paginator.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Client implements Client against an S3-compatible backend, scoped to the
// <userId>/ prefix of one bucket.
type S3Client struct {
	bucket  string
	prefix  string
	api     s3API
	presign presignAPI
	now     func() time.Time
}

func NewS3Client(ctx context.Context, cfg Config) (*S3Client, error) {
	if cfg.UserID == "" {
		return nil, common.ErrNoUserID
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		bucket:  cfg.Bucket,
		prefix:  cfg.UserID + "/",
		api:     client,
		presign: s3.NewPresignClient(client),
		now:     time.Now,
	}, nil
}

func (c *S3Client) key(identity string) string {
	return c.prefix + identity
}

// Upload stores the bytes under the identity. IfNoneMatch guards against
// silently overwriting an existing object: the same identity uploaded twice
// yields common.ErrObjectExists instead of a second blob.
func (c *S3Client) Upload(ctx context.Context, identity string, body []byte) (*models.RemoteRef, error) {
	key := c.key(identity)

	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("audio/mp4"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, common.ErrObjectExists) {
			// The object is already there; hand back the ref so the caller
			// can treat the collision as a completed upload.
			return &models.RemoteRef{Key: key}, mapped
		}
		return nil, mapped
	}

	return &models.RemoteRef{Key: key}, nil
}

// List walks every page of the namespace listing before returning, so the
// result is never partial on success.
func (c *S3Client) List(ctx context.Context) ([]RemoteObject, error) {
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(c.prefix),
	})

	var objects []RemoteObject
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, obj := range page.Contents {
			identity := strings.TrimPrefix(aws.ToString(obj.Key), c.prefix)
			if identity == "" {
				continue
			}
			objects = append(objects, RemoteObject{
				Identity:  identity,
				Key:       aws.ToString(obj.Key),
				SizeBytes: aws.ToInt64(obj.Size),
				CreatedAt: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

func (c *S3Client) MintAccessURL(ctx context.Context, identity string, ttl time.Duration) (string, time.Time, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(identity)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", time.Time{}, mapError(err)
	}

	return req.URL, c.now().Add(ttl), nil
}

func (c *S3Client) Remove(ctx context.Context, identity string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(identity)),
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

// mapError translates SDK failures into the engine's error taxonomy.
// Anything unrecognized, including connection-level failures, is classified
// transient and therefore retryable.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed":
			return common.ErrObjectExists
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return common.ErrorNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "TokenRefreshRequired":
			return common.ErrUnauthorized
		case "QuotaExceeded", "ServiceQuotaExceededException", "EntityTooLarge":
			return common.ErrQuotaExceeded
		}
	}

	return fmt.Errorf("%w: %v", common.ErrTransientStore, err)
}
