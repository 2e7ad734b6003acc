package blob

import (
	"context"
	"errors"
	"testing"

	"treeadopt/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func TestS3Store_Upload(t *testing.T) {
	ctx := context.Background()
	cfg := config.S3Config{Bucket: "trees", Region: "ap-south-1", Prefix: "images/"}

	t.Run("Success", func(t *testing.T) {
		client := new(mockS3)
		client.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Bucket) == "trees" &&
				aws.ToString(in.Key) == "images/planting/a.jpg" &&
				aws.ToString(in.ContentType) == "image/jpeg" &&
				aws.ToInt64(in.ContentLength) == 3
		})).Return(&s3.PutObjectOutput{}, nil)

		store := newS3Store(client, cfg, zerolog.Nop())
		obj, err := store.Upload(ctx, "planting/a.jpg", "image/jpeg", []byte("img"))

		require.NoError(t, err)
		assert.Equal(t, "images/planting/a.jpg", obj.ExternalID)
		assert.Equal(t, "https://trees.s3.ap-south-1.amazonaws.com/images/planting/a.jpg", obj.URL)
		client.AssertExpectations(t)
	})

	t.Run("Custom public URL", func(t *testing.T) {
		client := new(mockS3)
		client.On("PutObject", ctx, mock.Anything).Return(&s3.PutObjectOutput{}, nil)

		withCDN := cfg
		withCDN.PublicBaseURL = "https://cdn.example.com/"
		store := newS3Store(client, withCDN, zerolog.Nop())
		obj, err := store.Upload(ctx, "g/b.png", "image/png", []byte("x"))

		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/images/g/b.png", obj.URL)
	})

	t.Run("Put failure", func(t *testing.T) {
		client := new(mockS3)
		client.On("PutObject", ctx, mock.Anything).Return(nil, errors.New("access denied"))

		store := newS3Store(client, cfg, zerolog.Nop())
		_, err := store.Upload(ctx, "planting/a.jpg", "image/jpeg", []byte("img"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to put object to S3")
	})
}

func TestS3Store_Delete(t *testing.T) {
	ctx := context.Background()
	cfg := config.S3Config{Bucket: "trees", Region: "ap-south-1"}

	client := new(mockS3)
	client.On("DeleteObject", ctx, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "images/a.jpg"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	client.On("DeleteObject", ctx, mock.Anything).Return(nil, errors.New("boom"))

	store := newS3Store(client, cfg, zerolog.Nop())

	assert.NoError(t, store.Delete(ctx, "images/a.jpg"))
	assert.Error(t, store.Delete(ctx, "images/b.jpg"))
}
