// Package audit provides the local, durable admission log (§4.K):
// one row per session that reaches REGISTER, independent of whether
// the manager reporter is configured or reachable.
package audit

import (
	"time"

	"github.com/codingbear/mcrouter/internal/logging"
)

var log = logging.New("audit")

// Recorder is the durable sink an admission is written to. *store.DB
// satisfies this.
type Recorder interface {
	RecordAdmission(acceptedAt time.Time, clientIP, domain, username, uuid, upstream string) error
}

// Admission is one accepted session, as reported to the log.
type Admission struct {
	ClientIP string
	Domain   string
	Username string
	UUID     string
	Upstream string
}

// Log is the session-facing admission log writer.
type Log struct {
	rec Recorder
}

// New wraps rec (typically *store.DB) as an admission log.
func New(rec Recorder) *Log {
	return &Log{rec: rec}
}

// Record writes a admission row. Failures are logged and swallowed:
// the audit log must never affect session lifecycle.
func (l *Log) Record(a Admission) {
	if l == nil || l.rec == nil {
		return
	}
	if err := l.rec.RecordAdmission(time.Now(), a.ClientIP, a.Domain, a.Username, a.UUID, a.Upstream); err != nil {
		log.Error("record failed for domain %q: %v", a.Domain, err)
	}
}
