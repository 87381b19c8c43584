package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobRef       = "job_ref"
	KeyBuildID      = "build_id"
	KeyStage        = "stage"
	KeyDurationMS   = "duration_ms"
	KeyCommit       = "commit"
	KeyPath         = "path"
	KeyMetadataType = "metadata_type"
	KeyMember       = "member"
	KeyAttempt      = "attempt"
	KeyStatus       = "status"
	KeyTestLevel    = "test_level"
	KeyCount        = "count"
	KeyURL          = "url"
	KeyReason       = "reason"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobRef(id string) slog.Attr         { return slog.String(KeyJobRef, id) }
func BuildID(id string) slog.Attr        { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr        { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func MetadataType(t string) slog.Attr    { return slog.String(KeyMetadataType, t) }
func Member(m string) slog.Attr          { return slog.String(KeyMember, m) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func Status(s string) slog.Attr          { return slog.String(KeyStatus, s) }
func TestLevel(l string) slog.Attr       { return slog.String(KeyTestLevel, l) }
func Count(n int) slog.Attr              { return slog.Int(KeyCount, n) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func Reason(r string) slog.Attr          { return slog.String(KeyReason, r) }

// Commit shortens full hashes to eight characters.
func Commit(c string) slog.Attr {
	if len(c) > 8 {
		c = c[:8]
	}
	return slog.String(KeyCommit, c)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
