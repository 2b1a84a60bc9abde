// Package handlers implements the HTTP endpoints of the build server.
//
// Handlers depend on narrow interfaces (Runner, History, ArtifactLocator) so
// they can be exercised with fakes. Errors are rendered through the shared
// HTTPErrorAdapter, which maps error categories to status codes.
package handlers
