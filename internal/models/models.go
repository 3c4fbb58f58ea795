package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Recording struct {
	ID        int64     `json:"id"`
	Time      Timestamp `json:"time"`
	Direction string    `json:"direction"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	FileURL   string    `json:"file"`
}

// Page is the filtered result of one remote list call. Never empty.
type Page []Recording

// Timestamp keeps the remote text next to the parsed instant so that file
// names reproduce exactly what the API returned.
type Timestamp struct {
	time.Time
	raw string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
}

func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return Timestamp{Time: t, raw: s}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t, raw: t.Format(time.RFC3339)}
}

func (t Timestamp) String() string {
	if t.raw == "" && !t.IsZero() {
		return t.Format(time.RFC3339)
	}
	return t.raw
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

type LedgerAction string

const (
	LedgerDownloaded LedgerAction = "downloaded"
	LedgerDeleted    LedgerAction = "deleted"
)

type LedgerEntry struct {
	ID          uint         `gorm:"primaryKey;autoIncrement" json:"-"`
	RecordingID int64        `gorm:"not null;index" json:"recording_id"`
	Action      LedgerAction `gorm:"type:varchar(16);not null;index" json:"action"`
	RecordedAt  time.Time    `gorm:"index;not null" json:"recorded_at"`
	Time        string       `gorm:"type:varchar(64);not null" json:"time"`
	Direction   string       `gorm:"type:varchar(16)" json:"direction"`
	From        string       `gorm:"type:varchar(64)" json:"from"`
	To          string       `gorm:"type:varchar(64)" json:"to"`
	Location    string       `gorm:"type:text" json:"location,omitempty"`
}

func (LedgerEntry) TableName() string {
	return "recording_ledger"
}

func NewLedgerEntry(action LedgerAction, rec Recording, location string, at time.Time) LedgerEntry {
	return LedgerEntry{
		RecordingID: rec.ID,
		Action:      action,
		RecordedAt:  at,
		Time:        rec.Time.String(),
		Direction:   rec.Direction,
		From:        rec.From,
		To:          rec.To,
		Location:    location,
	}
}
