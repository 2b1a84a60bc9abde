// Package profile renders device build profiles into a toolchain
// configuration and locates the toolchain output directory.
package profile

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
)

// ErrEnvNotFound is returned when a script declares no [env:<name>] section.
var ErrEnvNotFound = stderrors.New("no [env:<name>] section in build configuration")

var envHeader = regexp.MustCompile(`\[env:([a-zA-Z0-9_\-]+)\]`)

// BuildRoot is the toolchain output root relative to the repository.
const BuildRoot = ".pio/build"

// Rendered is a profile rendered for one device.
type Rendered struct {
	Script    string
	EnvName   string
	BuildPath string
}

// Render substitutes device fields into tmpl.
//
// Placeholders take the form {device[key]} or {device.key}. Doubled braces
// produce literal braces. Any other placeholder, or a key missing from
// fields, is a validation error.
func Render(tmpl string, fields map[string]any) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); i++ {
		ch := tmpl[i]
		switch ch {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", renderError("unclosed placeholder", tmpl[i:], i)
			}
			expr := tmpl[i+1 : i+1+end]
			val, err := resolve(expr, fields, i)
			if err != nil {
				return "", err
			}
			b.WriteString(val)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", renderError("single '}' in template", "}", i)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String(), nil
}

func resolve(expr string, fields map[string]any, offset int) (string, error) {
	var key string
	switch {
	case strings.HasPrefix(expr, "device[") && strings.HasSuffix(expr, "]"):
		key = strings.Trim(expr[len("device["):len(expr)-1], `"'`)
	case strings.HasPrefix(expr, "device."):
		key = expr[len("device."):]
	default:
		return "", renderError("unsupported placeholder", "{"+expr+"}", offset)
	}
	if key == "" {
		return "", renderError("empty device field", "{"+expr+"}", offset)
	}

	v, ok := fields[key]
	if !ok {
		return "", errors.ValidationError(fmt.Sprintf("device field %q is not set", key)).
			WithContext("field", key).
			WithContext("placeholder", "{"+expr+"}").
			Build()
	}
	return formatValue(v), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case fmt.Stringer:
		return t.String()
	default:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
		return fmt.Sprint(t)
	}
}

func renderError(msg, near string, offset int) error {
	return errors.ValidationError("profile template: "+msg).
		WithContext("near", near).
		WithContext("offset", offset).
		Build()
}

// ExtractBuildPath returns the toolchain output directory, relative to the
// repository root, for the first [env:<name>] section of script.
func ExtractBuildPath(script string) (string, error) {
	name, err := EnvName(script)
	if err != nil {
		return "", err
	}
	return BuildPath(name), nil
}

// EnvName returns the name of the first [env:<name>] section of script.
func EnvName(script string) (string, error) {
	m := envHeader.FindStringSubmatch(script)
	if m == nil {
		return "", errors.NotFoundError("build environment not declared").
			WithCause(ErrEnvNotFound).
			Warning().
			Build()
	}
	return m[1], nil
}

// BuildPath joins the toolchain output root and an environment name.
func BuildPath(env string) string {
	return BuildRoot + "/" + env
}

// Prepare renders tmpl for the device and resolves its output directory.
// When no environment is declared, defaultEnv is used and the lookup error is
// returned as a warning alongside the result.
func Prepare(tmpl string, fields map[string]any, defaultEnv string) (*Rendered, error, error) {
	script, err := Render(tmpl, fields)
	if err != nil {
		return nil, nil, err
	}

	name, warning := EnvName(script)
	if warning != nil {
		name = defaultEnv
	}
	return &Rendered{Script: script, EnvName: name, BuildPath: BuildPath(name)}, warning, nil
}
