package build

// StatusDone is the only status a returned Result carries; failures are
// reported as errors.
const StatusDone = "done"

// Result is the outcome of a successful build.
type Result struct {
	Status      string   `json:"status"`
	Artifact    string   `json:"artifact"`
	BuildID     string   `json:"build_id"`
	Device      string   `json:"device"`
	Commit      string   `json:"commit,omitempty"`
	Files       []string `json:"files"`
	ArtifactURL string   `json:"artifact_url,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	Warnings    []string `json:"warnings,omitempty"`
}
