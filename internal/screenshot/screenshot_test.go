package screenshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletledger/internal/apperrors"
)

var (
	pngHeader  = []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")
	jpegHeader = []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF")
	webpHeader = []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
)

func image(header []byte, size int) []byte {
	data := make([]byte, size)
	copy(data, header)
	return data
}

type putterFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)

func (f putterFunc) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return f(ctx, params, optFns...)
}

func TestValidate(t *testing.T) {
	t.Run("accepted images", func(t *testing.T) {
		cases := map[string][]byte{
			"image/png":  image(pngHeader, 2<<20),
			"image/jpeg": image(jpegHeader, 1024),
			"image/webp": image(webpHeader, MaxSize),
		}

		for want, data := range cases {
			got, err := Validate(data)

			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		cases := map[string][]byte{
			"empty":    nil,
			"oversize": image(pngHeader, MaxSize+1),
			"gif":      []byte("GIF89a......"),
			"pdf":      []byte("%PDF-1.7\n"),
			"text":     []byte("hello"),
		}

		for name, data := range cases {
			_, err := Validate(data)

			var fieldErr *apperrors.FieldError
			require.ErrorAs(t, err, &fieldErr, name)
			assert.Equal(t, "screenshot", fieldErr.Field)
		}
	})
}

func TestS3Store_Save(t *testing.T) {
	userID := uuid.MustParse("0199a0b2-0000-7000-8000-000000000001")

	t.Run("uploads", func(t *testing.T) {
		var got *s3.PutObjectInput
		store := newS3Store(putterFunc(func(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			got = params
			return &s3.PutObjectOutput{}, nil
		}), "proofs", "https://proofs.s3.ap-south-1.amazonaws.com")
		store.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
		data := image(pngHeader, 2048)

		url, err := store.Save(t.Context(), userID, data)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "proofs", aws.ToString(got.Bucket))
		assert.Equal(t, "image/png", aws.ToString(got.ContentType))
		assert.True(t, strings.HasPrefix(aws.ToString(got.Key), "deposits/"+userID.String()+"/2026/03/01/"))
		assert.True(t, strings.HasSuffix(aws.ToString(got.Key), ".png"))
		assert.Equal(t, "https://proofs.s3.ap-south-1.amazonaws.com/"+aws.ToString(got.Key), url)

		body, err := io.ReadAll(got.Body)
		require.NoError(t, err)
		assert.Equal(t, data, body)
	})

	t.Run("invalid image not uploaded", func(t *testing.T) {
		store := newS3Store(putterFunc(func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			t.Fatal("must not upload")
			return nil, nil
		}), "proofs", "")

		_, err := store.Save(t.Context(), userID, []byte("hello"))

		var fieldErr *apperrors.FieldError
		require.ErrorAs(t, err, &fieldErr)
	})

	t.Run("upload error", func(t *testing.T) {
		store := newS3Store(putterFunc(func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			return nil, errors.New("access denied")
		}), "proofs", "")

		_, err := store.Save(t.Context(), userID, image(jpegHeader, 512))

		require.ErrorContains(t, err, "access denied")
	})
}

func TestReadLimited(t *testing.T) {
	data, err := ReadLimited(bytes.NewReader(make([]byte, MaxSize+100)))

	require.NoError(t, err)
	assert.Len(t, data, MaxSize+1)
}
