package build

import (
	"bytes"
	"encoding/json"
	"io"
	"maps"
	"regexp"
	"slices"
	"strings"

	"git.home.luguber.info/inful/fwbuilder/internal/certs"
	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// identityPattern restricts device identities to safe path components.
var identityPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Request is one build job.
type Request struct {
	Repository   Repository        `json:"repository"`
	Device       Device            `json:"device"`
	Profile      Profile           `json:"profile"`
	Certificates map[string]string `json:"certificates"`
}

// Repository identifies the firmware source.
type Repository struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
	// SSHKey is an optional private key; empty means anonymous access.
	SSHKey string `json:"sshKey,omitempty"`
}

// Device is the build target. Every JSON member besides identity is kept in
// Fields for template rendering.
type Device struct {
	Identity string
	Fields   map[string]any
}

// Profile carries the platformio.ini template.
type Profile struct {
	Script string `json:"script"`
}

// UnmarshalJSON collects all non-identity members into Fields, preserving
// number literals.
func (d *Device) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	d.Identity = ""
	if v, ok := raw["identity"]; ok {
		s, isString := v.(string)
		if !isString {
			return ferrors.ValidationError("device.identity must be a string").Build()
		}
		d.Identity = s
		delete(raw, "identity")
	}
	d.Fields = raw
	return nil
}

// MarshalJSON flattens Fields and Identity into one object.
func (d Device) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Fields)+1)
	maps.Copy(out, d.Fields)
	out["identity"] = d.Identity
	return json.Marshal(out)
}

// TemplateFields returns the values available to profile placeholders,
// identity included.
func (d Device) TemplateFields() map[string]any {
	out := make(map[string]any, len(d.Fields)+1)
	maps.Copy(out, d.Fields)
	out["identity"] = d.Identity
	return out
}

// CertificateNames returns the certificate names in sorted order.
func (r Request) CertificateNames() []string {
	return slices.Sorted(maps.Keys(r.Certificates))
}

// Validate checks the request before any side effect.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Repository.URL) == "":
		return invalidRequest("repository.url", "is required")
	case strings.TrimSpace(r.Repository.Branch) == "":
		return invalidRequest("repository.branch", "is required")
	case r.Device.Identity == "":
		return invalidRequest("device.identity", "is required")
	case !ValidIdentity(r.Device.Identity):
		return invalidRequest("device.identity", "may only contain letters, digits, '.', '_' and '-'")
	case strings.TrimSpace(r.Profile.Script) == "":
		return invalidRequest("profile.script", "is required")
	}
	for name := range r.Certificates {
		if !certs.ValidName(name) {
			return ferrors.ValidationError("certificate name must be a bare file name").
				WithContext("field", "certificates").
				WithContext("name", name).
				Build()
		}
	}
	return nil
}

// ValidIdentity reports whether identity is safe to use as a workspace and
// archive name.
func ValidIdentity(identity string) bool {
	return identityPattern.MatchString(identity) && identity != "." && identity != ".."
}

func invalidRequest(field, reason string) error {
	return ferrors.ValidationError(field+" "+reason).WithContext("field", field).Build()
}

// DecodeRequest parses a JSON request body.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		return Request{}, ferrors.ValidationError("malformed build request").WithCause(err).Build()
	}
	return req, nil
}
