// Package audit keeps an in-memory trail of every transport call of a run.
// The trail is only ever emitted when a run is about to fail.
package audit

import (
	"sync"
	"time"

	"github.com/peeteer1245/placetel-recording-downloader/internal/models"
	"github.com/sirupsen/logrus"
)

type Log struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	sink    *logrus.Entry
}

func NewLog(logger *logrus.Logger) *Log {
	return &Log{
		sink: logger.WithField("component", "audit"),
	}
}

func (l *Log) Record(ts time.Time, endpoint string, statusCode int, tag models.AuditTag) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, models.AuditEntry{
		Timestamp:  ts,
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Tag:        tag,
	})
}

// Entries returns a copy of the trail in insertion order.
func (l *Log) Entries() []models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) Dump() {
	entries := l.Entries()

	l.sink.WithField("count", len(entries)).Error("Dumping request audit log")
	for i, e := range entries {
		l.sink.WithFields(logrus.Fields{
			"seq":         i + 1,
			"timestamp":   e.Timestamp.Format(time.RFC3339Nano),
			"endpoint":    e.Endpoint,
			"status_code": e.StatusCode,
			"tag":         string(e.Tag),
		}).Error("Audit entry")
	}
}
