// Package credentials materializes the SSH key supplied with a build request
// inside the build workspace and turns it into a go-git auth method.
package credentials

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"

	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
)

// HostPolicy disables host key verification for every host. Build hosts
// clone from remotes whose keys are not known ahead of time.
const HostPolicy = "Host *\n    StrictHostKeyChecking no\n    UserKnownHostsFile /dev/null\n"

// Material is the result of provisioning a key for one build.
type Material struct {
	KeyPath    string
	ConfigPath string
	Auth       transport.AuthMethod
}

// SSHCommand renders the ssh invocation equivalent to Auth, for diagnostics.
func (m *Material) SSHCommand() string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("ssh -i %s -F %s", m.KeyPath, m.ConfigPath)
}

// Provisioner writes key material into workspaces.
type Provisioner struct {
	keyFile   string
	sshConfig string
	user      string
}

// NewProvisioner returns a provisioner writing the key to keyFile and the host
// policy to sshConfig, both relative to the workspace.
func NewProvisioner(keyFile, sshConfig, user string) *Provisioner {
	if keyFile == "" {
		keyFile = "id_rsa"
	}
	if sshConfig == "" {
		sshConfig = filepath.Join(".ssh", "config")
	}
	if user == "" {
		user = "git"
	}
	return &Provisioner{keyFile: keyFile, sshConfig: sshConfig, user: user}
}

// Provision writes key into workspace using the default file layout.
func Provision(workspace, key string) (*Material, error) {
	return NewProvisioner("", "", "").Provision(workspace, key)
}

// NormalizeKey trims surrounding whitespace, converts CRLF line endings and
// terminates the key with exactly one newline.
func NormalizeKey(key string) string {
	key = strings.ReplaceAll(key, "\r\n", "\n")
	return strings.TrimSpace(key) + "\n"
}

// Provision materializes key inside workspace. An empty or whitespace-only key
// writes nothing and returns a nil Material, meaning an anonymous clone.
func (p *Provisioner) Provision(workspace, key string) (*Material, error) {
	if strings.TrimSpace(key) == "" {
		slog.Info("No SSH key supplied, cloning anonymously", logfields.Path(workspace))
		return nil, nil //nolint:nilnil // nil material means anonymous access.
	}

	pemBytes := []byte(NormalizeKey(key))
	keyPath := filepath.Join(workspace, p.keyFile)
	configPath := filepath.Join(workspace, p.sshConfig)

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return nil, writeError("create key directory", keyPath, err)
	}
	if err := os.WriteFile(keyPath, pemBytes, 0o600); err != nil {
		return nil, writeError("write SSH key", keyPath, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(keyPath, 0o600); err != nil {
		return nil, writeError("restrict SSH key permissions", keyPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return nil, writeError("create ssh config directory", configPath, err)
	}
	if err := os.WriteFile(configPath, []byte(HostPolicy), 0o600); err != nil {
		return nil, writeError("write ssh config", configPath, err)
	}

	auth, err := ssh.NewPublicKeys(p.user, pemBytes, "")
	if err != nil {
		return nil, ferrors.CredentialError("SSH key could not be parsed").
			WithCause(err).
			WithContext("path", keyPath).
			Build()
	}
	auth.HostKeyCallback = gossh.InsecureIgnoreHostKey()

	slog.Info("SSH credentials provisioned", logfields.Path(keyPath))
	return &Material{KeyPath: keyPath, ConfigPath: configPath, Auth: auth}, nil
}

func writeError(op, path string, err error) error {
	return ferrors.CredentialError(op).
		WithCause(err).
		WithContext("path", path).
		Build()
}
