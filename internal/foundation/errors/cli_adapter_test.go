package errors

import (
	"log/slog"
	"strings"
	"testing"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: 0},
		{name: "validation error", err: ValidationError("identity is required").Build(), expected: 2},
		{name: "credential error", err: CredentialError("unparseable key").Build(), expected: 5},
		{name: "config error", err: ConfigError("bad config").Build(), expected: 7},
		{name: "git error", err: GitError("clone failed").Build(), expected: 8},
		{name: "network error", err: NetworkError("fetch failed").Build(), expected: 8},
		{name: "toolchain error", err: ToolchainError("pio exited 1").Build(), expected: 11},
		{name: "packaging error", err: PackagingError("zip failed").Build(), expected: 11},
		{name: "timeout error", err: TimeoutError("deadline exceeded").Build(), expected: 12},
		{name: "internal error", err: InternalError("bug").Build(), expected: 10},
		{name: "unclassified error", err: &customError{msg: "unknown error"}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adapter.ExitCodeFor(tt.err)
			if got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		err      error
		contains string
	}{
		{name: "nil error", err: nil, contains: ""},
		{
			name:     "internal error in non-verbose mode",
			err:      InternalError("internal issue").Build(),
			contains: "Internal error occurred (use -v for details)",
		},
		{
			name:     "toolchain error shows message",
			err:      ToolchainError("toolchain exited with status 1").Build(),
			contains: "toolchain exited with status 1",
		},
		{
			name:     "verbose mode shows full error",
			verbose:  true,
			err:      InternalError("internal issue").Build(),
			contains: "internal issue",
		},
		{
			name:     "unclassified error",
			err:      &customError{msg: "unknown error"},
			contains: "Error: unknown error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewCLIErrorAdapter(tt.verbose, slog.Default())
			got := adapter.FormatError(tt.err)
			if tt.contains == "" {
				if got != "" {
					t.Errorf("FormatError() = %q, want empty string", got)
				}
				return
			}
			if !strings.Contains(got, tt.contains) {
				t.Errorf("FormatError() = %q, want to contain %q", got, tt.contains)
			}
		})
	}
}

// customError is a test helper for unclassified errors
type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}
