// Package errors provides foundational, type-safe error primitives used across fwbuilder.
//
// This package contains classified error types and helpers for robust error handling,
// including a fluent builder API for constructing ClassifiedError values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification (config, git, network, toolchain, etc.)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - RetryStrategy: Retry behavior (never, backoff, rate-limit, user action)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - HTTP and CLI adapters for error presentation
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryGit, "clone failed").
//		WithSeverity(errors.SeverityFatal).
//		WithContext("url", repoURL).
//		WithCause(originalErr).
//		Build()
package errors
