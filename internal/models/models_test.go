package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingUnmarshal(t *testing.T) {
	body := `{"id":42,"time":"2024-03-01T09:15:00+01:00","direction":"in","from":"0301234","to":"0305678","file":"https://files.example/42.mp3"}`

	var rec Recording
	require.NoError(t, json.Unmarshal([]byte(body), &rec))

	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, "in", rec.Direction)
	assert.Equal(t, "0301234", rec.From)
	assert.Equal(t, "0305678", rec.To)
	assert.Equal(t, "https://files.example/42.mp3", rec.FileURL)
	assert.Equal(t, "2024-03-01T09:15:00+01:00", rec.Time.String())

	want := time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC)
	assert.True(t, rec.Time.Equal(want), "got %s", rec.Time.Time)
}

func TestParseTimestampLayouts(t *testing.T) {
	cases := []string{
		"2024-03-01T09:15:00Z",
		"2024-03-01T09:15:00.123+02:00",
		"2024-03-01T09:15:00",
		"2024-03-01 09:15:00 +0100",
		"2024-03-01 09:15:00",
	}
	for _, in := range cases {
		ts, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, ts.String())
		assert.Equal(t, 2024, ts.Year())
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	_, err := ParseTimestamp("yesterday")
	require.Error(t, err)

	var rec Recording
	err = json.Unmarshal([]byte(`{"id":1,"time":"soon"}`), &rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized timestamp")
}

func TestTimestampMarshalRoundTripKeepsRawText(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-01 09:15:00 +0100")
	require.NoError(t, err)

	out, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-03-01 09:15:00 +0100"`, string(out))
}

func TestNewLedgerEntry(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-01T09:15:00Z")
	require.NoError(t, err)
	rec := Recording{ID: 7, Time: ts, Direction: "out", From: "1", To: "2"}
	at := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	entry := NewLedgerEntry(LedgerDownloaded, rec, "/tmp/x.mp3", at)

	assert.Equal(t, int64(7), entry.RecordingID)
	assert.Equal(t, LedgerDownloaded, entry.Action)
	assert.Equal(t, "2024-03-01T09:15:00Z", entry.Time)
	assert.Equal(t, "/tmp/x.mp3", entry.Location)
	assert.Equal(t, at, entry.RecordedAt)
	assert.Equal(t, "recording_ledger", entry.TableName())
}
