package archive

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/radiology-ops/internal/appointments"
	"github.com/wolfman30/radiology-ops/internal/modality"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte // key -> body
}

type putCall struct {
	bucket string
	key    string
	body   []byte
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{bucket: *input.Bucket, key: *input.Key, body: body})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func sample() []appointments.Appointment {
	completed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.FixedZone("AST", 3*3600))
	created := time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC)
	return []appointments.Appointment{
		{
			ID: "20240501_12345_MRI", PatientName: "Sara Ali", FileNumber: "12345", ExamType: modality.MRI,
			ExamList: []string{"MRI BRAIN"}, Date: "2024-05-01", Time: "09:00", Status: appointments.StatusDone,
			PerformedBy: "tech-1", CompletedAt: &completed, CreatedAt: created, UpdatedAt: created, Version: 3,
		},
		{
			ID: "20240430_999_CT", PatientName: "Omar", FileNumber: "999", ExamType: modality.CT,
			ExamList: []string{"CT HEAD"}, Date: "2024-04-30", Time: "10:00", Status: appointments.StatusPending,
			CreatedAt: created, UpdatedAt: created, Version: 1,
		},
	}
}

func TestStore_PutAndGet(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "radiology-archive", nil)
	store.now = func() time.Time { return time.Date(2024, 6, 2, 14, 5, 9, 0, time.UTC) }

	data, err := Encode(sample())
	require.NoError(t, err)
	key, err := store.Put(context.Background(), "Purge Done!", data)
	require.NoError(t, err)
	assert.Equal(t, "archives/appointments/2024/06/02/purge-done_20240602T140509Z.json", key)
	require.Len(t, mock.putCalls, 1)
	assert.Equal(t, "radiology-archive", mock.putCalls[0].bucket)

	got, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = store.Get(context.Background(), "archives/missing.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestStore_Disabled(t *testing.T) {
	store := NewStore(nil, "", nil)
	assert.False(t, store.Enabled())
	_, err := store.Put(context.Background(), "x", []byte("[]"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDirStore_RoundTripAndEscape(t *testing.T) {
	dir := NewDirStore(t.TempDir())
	key, err := dir.Put(context.Background(), "export", []byte("[]"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "archives/appointments/"))

	got, err := dir.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	_, err = dir.Get(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, ok := ParseS3URI("s3://radiology-archive/archives/appointments/2024/06/02/x.json")
	require.True(t, ok)
	assert.Equal(t, "radiology-archive", bucket)
	assert.Equal(t, "archives/appointments/2024/06/02/x.json", key)

	for _, bad := range []string{"radiology-archive/x.json", "s3://bucket", "s3:///key"} {
		_, _, ok := ParseS3URI(bad)
		assert.False(t, ok, bad)
	}
}
