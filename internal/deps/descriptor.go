package deps

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var ErrEmptyDescriptor = errors.New("empty dependency descriptor")

// Source tells where a descriptor is resolved from
type Source int

const (
	SourceRegistry Source = iota // bare name looked up in the registry
	SourceFile                   // local package file
	SourceRemote                 // http(s) locator
)

// String returns the string representation of the source
func (s Source) String() string {
	switch s {
	case SourceRegistry:
		return "registry"
	case SourceFile:
		return "file"
	case SourceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// package file suffixes accepted as local locators
var archiveSuffixes = []string{".whl", ".tgz"}

func isArchive(name string) bool {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// version specifier operators, longest first
var versionOps = []string{"==", ">=", "<=", "~=", "!=", ">", "<"}

// Descriptor identifies one dependency
type Descriptor struct {
	Raw     string
	Name    string // resolution name, version specifier removed
	Version string // specifier including its operator, e.g. "==1.2"
	Locator string // set for package files and remote locators
	Source  Source
}

// Parse interprets a raw dependency entry
func Parse(raw string) (Descriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Descriptor{}, ErrEmptyDescriptor
	}

	d := Descriptor{Raw: raw}

	if u, err := url.Parse(raw); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		d.Source = SourceRemote
		d.Locator = raw
		d.Name = locatorName(u.Path)
		if d.Name == "" {
			return Descriptor{}, fmt.Errorf("locator %q has no file name", raw)
		}
		return d, nil
	}

	if isArchive(raw) {
		d.Source = SourceFile
		d.Locator = raw
		d.Name = locatorName(raw)
		return d, nil
	}

	d.Source = SourceRegistry
	d.Name = raw
	for _, op := range versionOps {
		if i := strings.Index(raw, op); i > 0 {
			d.Name = strings.TrimSpace(raw[:i])
			d.Version = op + strings.TrimSpace(raw[i+len(op):])
			break
		}
	}
	return d, nil
}

// ParseAll parses an ordered dependency list, keeping its order
func ParseAll(raws []string) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(raws))
	for i, raw := range raws {
		d, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("dependency %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// DisplayName is the name used in status lines. Package files are shown by
// their derived name, every other entry exactly as written.
func (d Descriptor) DisplayName() string {
	if isArchive(d.Raw) {
		return d.Name
	}
	return d.Raw
}

// PinnedVersion returns the version of an exact "==" specifier
func (d Descriptor) PinnedVersion() (string, bool) {
	if strings.HasPrefix(d.Version, "==") {
		return strings.TrimPrefix(d.Version, "=="), true
	}
	return "", false
}

// String returns the raw entry
func (d Descriptor) String() string {
	return d.Raw
}

// locatorName derives a package name from a file locator: the final path
// segment without extension, up to the first dash.
func locatorName(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	for _, suffix := range archiveSuffixes {
		base = strings.TrimSuffix(base, suffix)
	}
	base = strings.TrimSuffix(base, ".js")
	name, _, _ := strings.Cut(base, "-")
	if name == "." || name == "/" {
		return ""
	}
	return name
}
