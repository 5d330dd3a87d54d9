package archive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_IDTagAndISOTimestamps(t *testing.T) {
	data, err := Encode(sample())
	require.NoError(t, err)

	records, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "20240501_12345_MRI", first.ID())
	_, hasID := first["id"]
	assert.False(t, hasID)
	assert.Equal(t, "2024-05-01T06:30:00Z", first.String("completedAt"))
	assert.Equal(t, "2024-05-01T05:00:00Z", first.String("createdAt"))
	assert.Equal(t, []any{"MRI BRAIN"}, first["examList"])
}

func TestDecode_RejectsNonArray(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte(`{"_id":"x"}`)))
	assert.Error(t, err)
}

func TestSummarizeFilterSort(t *testing.T) {
	data, err := Encode(sample())
	require.NoError(t, err)
	records, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	s := Summarize(records)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, map[string]int{"done": 1, "pending": 1}, s.ByStatus)
	assert.Equal(t, "2024-04-30", s.FirstDate)
	assert.Equal(t, "2024-05-01", s.LastDate)

	SortByDate(records)
	assert.Equal(t, "20240430_999_CT", records[0].ID())

	done := FilterRecords(records, "status", "done")
	require.Len(t, done, 1)
	assert.Equal(t, "20240501_12345_MRI", done[0].ID())
}
