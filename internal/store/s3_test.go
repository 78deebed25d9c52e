package store

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safevoice/internal/common"
)

type fakeS3 struct {
	putInputs  []*s3.PutObjectInput
	putErr     error
	pages      []*s3.ListObjectsV2Output
	pageCalls  int
	listErr    error
	deleteKeys []string
	deleteErr  error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInputs = append(f.putInputs, params)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := f.pages[f.pageCalls]
	f.pageCalls++
	return page, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleteKeys = append(f.deleteKeys, aws.ToString(params.Key))
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresign struct {
	url string
	err error
}

func (f *fakePresign) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url}, nil
}

func newTestClient(api *fakeS3, presign *fakePresign) *S3Client {
	return &S3Client{
		bucket:  "safevoice",
		prefix:  "u1/",
		api:     api,
		presign: presign,
		now:     func() time.Time { return time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC) },
	}
}

func TestS3Client_Upload_KeysIntoUserNamespace(t *testing.T) {
	api := &fakeS3{}
	c := newTestClient(api, &fakePresign{})

	ref, err := c.Upload(context.Background(), "u1_emergency_2025-01-05T10-00-00-000Z.m4a", []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, "u1/u1_emergency_2025-01-05T10-00-00-000Z.m4a", ref.Key)

	require.Len(t, api.putInputs, 1)
	in := api.putInputs[0]
	assert.Equal(t, "u1/u1_emergency_2025-01-05T10-00-00-000Z.m4a", aws.ToString(in.Key))
	// Overwrite guard: a second blob must never be created for one identity.
	assert.Equal(t, "*", aws.ToString(in.IfNoneMatch))
}

func TestS3Client_Upload_ExistingObjectIsNotOverwritten(t *testing.T) {
	api := &fakeS3{putErr: &smithy.GenericAPIError{Code: "PreconditionFailed"}}
	c := newTestClient(api, &fakePresign{})

	ref, err := c.Upload(context.Background(), "a.m4a", nil)
	assert.ErrorIs(t, err, common.ErrObjectExists)
	// The ref is still returned so the collision can be recorded as success.
	require.NotNil(t, ref)
	assert.Equal(t, "u1/a.m4a", ref.Key)
}

func TestS3Client_List_ExhaustsAllPages(t *testing.T) {
	api := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents: []types.Object{
				{Key: aws.String("u1/a.m4a"), Size: aws.Int64(10), LastModified: aws.Time(time.Unix(100, 0))},
				{Key: aws.String("u1/")}, // folder marker, skipped
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents: []types.Object{
				{Key: aws.String("u1/b.m4a"), Size: aws.Int64(20), LastModified: aws.Time(time.Unix(200, 0))},
			},
			IsTruncated: aws.Bool(false),
		},
	}}
	c := newTestClient(api, &fakePresign{})

	objects, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, 2, api.pageCalls)

	assert.Equal(t, "a.m4a", objects[0].Identity)
	assert.Equal(t, "u1/a.m4a", objects[0].Key)
	assert.Equal(t, int64(10), objects[0].SizeBytes)
	assert.Equal(t, "b.m4a", objects[1].Identity)
}

func TestS3Client_List_FailureIsNeverPartial(t *testing.T) {
	api := &fakeS3{listErr: &net.DNSError{Err: "no such host", Name: "s3"}}
	c := newTestClient(api, &fakePresign{})

	objects, err := c.List(context.Background())
	assert.ErrorIs(t, err, common.ErrTransientStore)
	assert.Nil(t, objects)
}

func TestS3Client_MintAccessURL(t *testing.T) {
	c := newTestClient(&fakeS3{}, &fakePresign{url: "https://signed.example/u1/a.m4a"})

	url, expiresAt, err := c.MintAccessURL(context.Background(), "a.m4a", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/u1/a.m4a", url)
	assert.Equal(t, time.Date(2025, 1, 5, 11, 0, 0, 0, time.UTC), expiresAt)
}

func TestS3Client_Remove(t *testing.T) {
	api := &fakeS3{}
	c := newTestClient(api, &fakePresign{})

	require.NoError(t, c.Remove(context.Background(), "a.m4a"))
	assert.Equal(t, []string{"u1/a.m4a"}, api.deleteKeys)
}

func TestNewS3Client_RequiresUserID(t *testing.T) {
	_, err := NewS3Client(context.Background(), Config{Bucket: "b"})
	assert.ErrorIs(t, err, common.ErrNoUserID)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "precondition failed", err: &smithy.GenericAPIError{Code: "PreconditionFailed"}, want: common.ErrObjectExists},
		{name: "no such key", err: &smithy.GenericAPIError{Code: "NoSuchKey"}, want: common.ErrorNotFound},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: common.ErrUnauthorized},
		{name: "quota exceeded", err: &smithy.GenericAPIError{Code: "QuotaExceeded"}, want: common.ErrQuotaExceeded},
		{name: "unknown api error is transient", err: &smithy.GenericAPIError{Code: "SlowDown"}, want: common.ErrTransientStore},
		{name: "network error is transient", err: errors.New("connection reset"), want: common.ErrTransientStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}
}
