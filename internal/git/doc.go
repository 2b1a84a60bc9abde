// Package git checks out build sources with go-git.
//
// A clone is always a fresh, single-branch checkout into a caller-supplied
// directory. Authentication is passed per call; no global git or ssh
// configuration is read or written. Failures are returned as classified
// errors in the git category, annotated with the kind of failure (auth,
// not_found, network, protocol, branch).
package git
