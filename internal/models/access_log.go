package models

import (
	"time"
)

type AuditTag string

const (
	TagGet    AuditTag = "HTTP GET"
	TagDelete AuditTag = "HTTP DELETE"
	TagFailed AuditTag = "failed request"
)

// AuditEntry records one transport call. Entries are never mutated.
type AuditEntry struct {
	Timestamp  time.Time
	Endpoint   string
	StatusCode int
	Tag        AuditTag
}
