// Package workspace manages per-device build directories.
//
// Every device identity maps to one fixed directory (root/prefix+identity)
// that is reset at the start of each build and left in place afterwards so a
// failed build can be inspected. Builds for the same identity are serialized
// with Lock; Prune removes workspaces that have not been touched for a while.
package workspace
