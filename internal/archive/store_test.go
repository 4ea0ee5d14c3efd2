package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte // key -> body
	putErr   error
}

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{
		bucket:      *input.Bucket,
		key:         *input.Key,
		contentType: *input.ContentType,
		body:        body,
	})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func TestStore_ArchiveExport(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "reports", nil)
	store.now = func() time.Time { return time.Date(2025, 3, 10, 14, 5, 9, 0, time.UTC) }

	key, err := store.ArchiveExport(context.Background(), "appointments", []byte("xlsx-bytes"), 4)
	require.NoError(t, err)
	assert.Equal(t, "exports/appointments/2025/03/10/20250310T140509Z.xlsx", key)

	// report + manifest
	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "reports", mock.putCalls[0].bucket)
	assert.Equal(t, XLSXContentType, mock.putCalls[0].contentType)
	assert.Equal(t, []byte("xlsx-bytes"), mock.putCalls[0].body)

	assert.Equal(t, "exports/manifests/2025-03.jsonl", mock.putCalls[1].key)
	var entry ManifestEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(mock.putCalls[1].body), &entry))
	assert.Equal(t, ManifestEntry{Report: "appointments", S3Key: key, Rows: 4, ArchivedAt: "2025-03-10T14:05:09Z"}, entry)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())

	key, err := store.ArchiveExport(context.Background(), "appointments", []byte("x"), 1)
	assert.NoError(t, err) // no-op, no error
	assert.Empty(t, key)

	var nilStore *Store
	assert.False(t, nilStore.Enabled())
}

func TestStore_ArchiveExportPutFails(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	store := NewStore(mock, "reports", nil)

	_, err := store.ArchiveExport(context.Background(), "appointments", []byte("x"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestStore_ManifestAppend(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "reports", nil)

	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{Report: "appointments", S3Key: "a"}))
	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{Report: "appointments", S3Key: "b"}))

	// The second append should contain both entries
	lastPut := mock.putCalls[len(mock.putCalls)-1]
	lines := bytes.Split(bytes.TrimSpace(lastPut.body), []byte("\n"))
	assert.Len(t, lines, 2)
}
