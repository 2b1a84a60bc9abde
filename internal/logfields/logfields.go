package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyDevice     = "device"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyRepo       = "repository"
	KeyBranch     = "branch"
	KeyCommit     = "commit"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyBytes      = "bytes"
	KeyURL        = "url"
	KeyAttempt    = "attempt"
	KeyExitCode   = "exit_code"
	KeyEnv        = "env"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyUserAgent  = "user_agent"
	KeyRemoteAddr = "remote_addr"
	KeyRequestID  = "request_id"
	KeyName       = "name"
	KeySubject    = "subject"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Device(identity string) slog.Attr { return slog.String(KeyDevice, identity) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Repository(r string) slog.Attr    { return slog.String(KeyRepo, r) }
func Branch(b string) slog.Attr        { return slog.String(KeyBranch, b) }
func Commit(sha string) slog.Attr      { return slog.String(KeyCommit, sha) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func File(f string) slog.Attr          { return slog.String(KeyFile, f) }
func Bytes(n int) slog.Attr            { return slog.Int(KeyBytes, n) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func ExitCode(code int) slog.Attr      { return slog.Int(KeyExitCode, code) }
func Env(name string) slog.Attr        { return slog.String(KeyEnv, name) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr    { return slog.String(KeyRemoteAddr, a) }
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func Name(n string) slog.Attr          { return slog.String(KeyName, n) }
func Subject(s string) slog.Attr       { return slog.String(KeySubject, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
