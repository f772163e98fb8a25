package deps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Manifest is a dependency list file
type Manifest struct {
	Dependencies []string `json:"dependencies" yaml:"dependencies" toml:"dependencies"`
}

// LoadManifest reads a YAML, TOML or JSON manifest, chosen by extension
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(filepath.Ext(path), data)
}

// ParseManifest decodes manifest data in the format named by ext
func ParseManifest(ext string, data []byte) (*Manifest, error) {
	var m Manifest
	var err error

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &m)
	case "toml":
		err = toml.Unmarshal(data, &m)
	case "json":
		err = sonic.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Descriptors parses the manifest entries in order
func (m *Manifest) Descriptors() ([]Descriptor, error) {
	return ParseAll(m.Dependencies)
}
