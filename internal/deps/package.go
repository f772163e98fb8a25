package deps

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/runtime"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

var (
	ErrUnsupportedPackage = errors.New("unsupported package format")
	ErrEmptyPackage       = errors.New("package contains no modules")
)

const entryFile = "index.js"

type packageFile struct {
	path string // relative to the package root
	src  []byte
}

// installPackage sniffs data and installs it under name. Archives are
// unpacked, plain text is a single-file module.
func installPackage(h *runtime.Handle, name, origin string, data []byte) error {
	mtype := mimetype.Detect(data)

	switch {
	case isA(mtype, "application/zip"):
		files, err := unzip(data)
		if err != nil {
			return fmt.Errorf("failed to unpack %s: %w", origin, err)
		}
		return installFiles(h, name, origin, stripRoot(name, files))

	case isA(mtype, "application/gzip"):
		files, err := untgz(data)
		if err != nil {
			return fmt.Errorf("failed to unpack %s: %w", origin, err)
		}
		return installFiles(h, name, origin, stripRoot(name, files))

	case isA(mtype, "text/plain"):
		return h.InstallModule(name, origin, string(data))

	default:
		return fmt.Errorf("%w: %s is %s", ErrUnsupportedPackage, origin, mtype.String())
	}
}

// isA walks the mime hierarchy, so text/javascript counts as text/plain
func isA(mtype *mimetype.MIME, want string) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}

// installFiles installs every file as <name>/<path>. The package must have
// an index.js entry unless it holds a single module.
func installFiles(h *runtime.Handle, name, origin string, files []packageFile) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyPackage, origin)
	}

	hasEntry := false
	for _, f := range files {
		if f.path == entryFile {
			hasEntry = true
		}
	}
	if !hasEntry && len(files) == 1 {
		files[0].path = entryFile
		hasEntry = true
	}
	if !hasEntry {
		return fmt.Errorf("%w: %s has no %s", ErrEmptyPackage, origin, entryFile)
	}

	srcs := make([]runtime.ModuleSource, 0, len(files))
	for _, f := range files {
		srcs = append(srcs, runtime.ModuleSource{
			Name:     name + "/" + f.path,
			Filename: origin + "!" + f.path,
			Source:   string(f.src),
		})
	}
	return h.InstallModules(srcs)
}

// stripRoot drops a leading <name>/ directory shared by every file
func stripRoot(name string, files []packageFile) []packageFile {
	prefix := name + "/"
	for _, f := range files {
		if !strings.HasPrefix(f.path, prefix) {
			return files
		}
	}
	for i := range files {
		files[i].path = strings.TrimPrefix(files[i].path, prefix)
	}
	return files
}

func unzip(data []byte) ([]packageFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var files []packageFile
	for _, zf := range zr.File {
		p, ok := modulePath(zf.Name)
		if !ok || zf.FileInfo().IsDir() {
			continue
		}
		if zf.UncompressedSize64 > maxPackageSize {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, zf.Name, maxPackageSize)
		}

		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		src, err := io.ReadAll(io.LimitReader(rc, maxPackageSize))
		rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, packageFile{path: p, src: src})
	}
	return files, nil
}

func untgz(data []byte) ([]packageFile, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var files []packageFile
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		p, ok := modulePath(hdr.Name)
		if !ok {
			continue
		}
		if hdr.Size > maxPackageSize {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, hdr.Name, maxPackageSize)
		}

		src, err := io.ReadAll(io.LimitReader(tr, maxPackageSize))
		if err != nil {
			return nil, err
		}
		files = append(files, packageFile{path: p, src: src})
	}
	return files, nil
}

// modulePath cleans an archive entry name and keeps only .js files that
// stay inside the package
func modulePath(name string) (string, bool) {
	if !strings.HasSuffix(name, ".js") {
		return "", false
	}
	p := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	p = strings.TrimPrefix(p, "./")
	if p == ".." || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return "", false
	}
	return p, true
}
