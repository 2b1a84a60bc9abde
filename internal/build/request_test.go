package build

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

const sampleBody = `{
  "repository": {"url": "git@github.com:acme/fw.git", "branch": "main", "sshKey": "KEY"},
  "device": {"identity": "sensor-7", "ssid": "lab", "port": 1883, "debug": true},
  "profile": {"script": "[env:esp32dev]\n"},
  "certificates": {"ca.pem": "CA"}
}`

func TestDecodeRequest(t *testing.T) {
	req, err := DecodeRequest(strings.NewReader(sampleBody))
	require.NoError(t, err)

	assert.Equal(t, "git@github.com:acme/fw.git", req.Repository.URL)
	assert.Equal(t, "main", req.Repository.Branch)
	assert.Equal(t, "KEY", req.Repository.SSHKey)
	assert.Equal(t, "sensor-7", req.Device.Identity)
	assert.Equal(t, "lab", req.Device.Fields["ssid"])
	assert.Equal(t, json.Number("1883"), req.Device.Fields["port"])
	assert.Equal(t, true, req.Device.Fields["debug"])
	assert.NotContains(t, req.Device.Fields, "identity")
	assert.Equal(t, map[string]string{"ca.pem": "CA"}, req.Certificates)
	require.NoError(t, req.Validate())
}

func TestDecodeRequestMalformed(t *testing.T) {
	_, err := DecodeRequest(strings.NewReader(`{"device": {"identity": 7}}`))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))

	_, err = DecodeRequest(strings.NewReader(`{`))
	require.Error(t, err)
}

func TestDeviceTemplateFieldsIncludeIdentity(t *testing.T) {
	d := Device{Identity: "x", Fields: map[string]any{"a": "b"}}
	assert.Equal(t, map[string]any{"a": "b", "identity": "x"}, d.TemplateFields())
	assert.NotContains(t, d.Fields, "identity", "TemplateFields must not mutate the device")
}

func TestDeviceMarshalFlattens(t *testing.T) {
	b, err := json.Marshal(Device{Identity: "x", Fields: map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"identity":"x","a":1}`, string(b))
}

func TestValidate(t *testing.T) {
	valid := func() Request {
		return Request{
			Repository: Repository{URL: "https://example.com/fw.git", Branch: "main"},
			Device:     Device{Identity: "dev_1.a-b"},
			Profile:    Profile{Script: "[env:x]"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"missing url", func(r *Request) { r.Repository.URL = " " }, "repository.url"},
		{"missing branch", func(r *Request) { r.Repository.Branch = "" }, "repository.branch"},
		{"missing identity", func(r *Request) { r.Device.Identity = "" }, "device.identity"},
		{"path identity", func(r *Request) { r.Device.Identity = "a/b" }, "device.identity"},
		{"dot identity", func(r *Request) { r.Device.Identity = ".." }, "device.identity"},
		{"missing script", func(r *Request) { r.Profile.Script = "" }, "profile.script"},
		{"bad certificate name", func(r *Request) { r.Certificates = map[string]string{"../x.pem": ""} }, "certificates"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			ce, ok := ferrors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, ferrors.CategoryValidation, ce.Category())
			field, _ := ce.Context().GetString("field")
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestCertificateNamesSorted(t *testing.T) {
	r := Request{Certificates: map[string]string{"b.pem": "", "a.pem": "", "c.pem": ""}}
	assert.Equal(t, []string{"a.pem", "b.pem", "c.pem"}, r.CertificateNames())
}
