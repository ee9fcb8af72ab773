package wunderground

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SecretFile is looked up in the working directory, then in $HOME.
const SecretFile = "weather-underground.ron"

// Secret holds the station credentials, e.g.
//
//	(id: "KCASANFR123", upload_key: "abcdef12")
//
// Plain YAML with the same keys is accepted too.
type Secret struct {
	ID        string `yaml:"id"`
	UploadKey string `yaml:"upload_key"`
}

// SearchDirs lists the working directory and the home directory, in that
// order. Directories that can't be resolved are left out.
func SearchDirs() []string {
	var dirs []string
	if pwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, pwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	return dirs
}

// FindSecret loads SecretFile from the first of dirs that has it and
// returns the secret along with the path it was read from.
func FindSecret(dirs ...string) (Secret, string, error) {
	var tried []string
	for _, dir := range dirs {
		path := filepath.Join(dir, SecretFile)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			tried = append(tried, path)
			continue
		}
		if err != nil {
			return Secret{}, path, errors.Wrapf(err, "couldn't read %s", path)
		}

		secret, err := ParseSecret(data)
		if err != nil {
			return Secret{}, path, errors.Wrapf(err, "couldn't parse %s", path)
		}
		return secret, path, nil
	}

	if len(tried) == 0 {
		return Secret{}, "", errors.Errorf("%s not found: no working or home directory to search", SecretFile)
	}
	return Secret{}, "", errors.Errorf("%s doesn't exist", strings.Join(tried, " and "))
}

func ParseSecret(data []byte) (Secret, error) {
	var secret Secret
	if err := yaml.Unmarshal([]byte(ronToYAML(string(data))), &secret); err != nil {
		return Secret{}, errors.Wrap(err, "malformed secret")
	}
	if secret.ID == "" {
		return Secret{}, errors.New("secret has no id")
	}
	if secret.UploadKey == "" {
		return Secret{}, errors.New("secret has no upload_key")
	}
	return secret, nil
}

// ronToYAML turns a RON struct, optionally named, into a YAML flow mapping:
// `Name(a: "x", b: "y",)` becomes `{a: "x", b: "y"}`. Anything else is
// returned unchanged.
func ronToYAML(text string) string {
	text = strings.TrimSpace(text)
	open := strings.IndexByte(text, '(')
	if open < 0 || !strings.HasSuffix(text, ")") || !isIdent(text[:open]) {
		return text
	}
	body := strings.TrimSpace(text[open+1 : len(text)-1])
	body = strings.TrimSuffix(body, ",")
	return "{" + body + "}"
}

func isIdent(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
