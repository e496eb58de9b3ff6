package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rateshop-backend/internal/shared/storage/object"
)

type fakeS3 struct {
	objects map[string][]byte
	lastPut *s3.PutObjectInput
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastPut = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestJoinKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "no prefix", prefix: "", key: "jobs/j1/results.json", want: "jobs/j1/results.json"},
		{name: "simple prefix", prefix: "root", key: "jobs/j1/results.json", want: "root/jobs/j1/results.json"},
		{name: "prefix and key slashes", prefix: "/root/", key: "/jobs/j1/results.json", want: "root/jobs/j1/results.json"},
		{name: "empty key", prefix: "root", key: "", want: "root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, joinKey(tt.prefix, tt.key))
		})
	}
}

func TestPutThenOpen(t *testing.T) {
	api := newFakeS3()
	store := NewWithAPI(api, Options{Bucket: "results", Prefix: "/rateshop/"})

	n, err := store.Put(t.Context(), "jobs/j1/results.json", "application/json", strings.NewReader(`{"jobId":"j1"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(14), n)
	assert.Equal(t, "rateshop/jobs/j1/results.json", aws.ToString(api.lastPut.Key))
	assert.Equal(t, "application/json", aws.ToString(api.lastPut.ContentType))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, api.lastPut.ServerSideEncryption)

	body, err := store.Open(t.Context(), "jobs/j1/results.json")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `{"jobId":"j1"}`, string(data))
}

func TestPutUsesKMSKey(t *testing.T) {
	api := newFakeS3()
	store := NewWithAPI(api, Options{Bucket: "results", KMSKeyID: " key-1 "})

	_, err := store.Put(t.Context(), "k", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	assert.Equal(t, s3types.ServerSideEncryptionAwsKms, api.lastPut.ServerSideEncryption)
	assert.Equal(t, "key-1", aws.ToString(api.lastPut.SSEKMSKeyId))
}

func TestOpenMissingKey(t *testing.T) {
	store := NewWithAPI(newFakeS3(), Options{Bucket: "results"})
	_, err := store.Open(t.Context(), "jobs/none/results.json")
	assert.ErrorIs(t, err, object.ErrNotExist)
}

func TestPutError(t *testing.T) {
	api := newFakeS3()
	api.putErr = errors.New("throttled")
	store := NewWithAPI(api, Options{Bucket: "results"})

	_, err := store.Put(t.Context(), "k", "application/json", strings.NewReader("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestCanceledContext(t *testing.T) {
	store := NewWithAPI(newFakeS3(), Options{Bucket: "results"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := store.Open(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.Put(ctx, "k", "application/json", strings.NewReader("{}"))
	assert.ErrorIs(t, err, context.Canceled)
}
