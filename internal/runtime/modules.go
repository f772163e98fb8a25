package runtime

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dop251/goja"
)

var ErrModuleExists = errors.New("module already installed")

type module struct {
	name     string
	filename string
	prog     *goja.Program
	exports  goja.Value // nil until first require
	loading  *goja.Object
}

// ModuleSource is one module of a package install
type ModuleSource struct {
	Name     string
	Filename string
	Source   string
}

// InstallModule compiles src and makes it available to require under name.
// Names are slash separated paths; "pkg/index.js" also answers require("pkg").
func (h *Handle) InstallModule(name, filename, src string) error {
	return h.InstallModules([]ModuleSource{{Name: name, Filename: filename, Source: src}})
}

// InstallModules installs a set of modules all or nothing: every module is
// compiled before any becomes requireable.
func (h *Handle) InstallModules(srcs []ModuleSource) error {
	if h.closed {
		return ErrClosed
	}

	compiled := make([]*module, 0, len(srcs))
	seen := make(map[string]bool, len(srcs))
	for _, src := range srcs {
		name := cleanModuleName(src.Name)
		if name == "" {
			return fmt.Errorf("invalid module name %q", src.Filename)
		}
		if _, ok := h.modules[name]; ok || seen[name] {
			return fmt.Errorf("%w: %s", ErrModuleExists, name)
		}
		seen[name] = true

		wrapped := "(function(exports, require, module, __filename, __dirname) {\n" + src.Source + "\n})"
		prog, err := goja.Compile(src.Filename, wrapped, false)
		if err != nil {
			return fmt.Errorf("failed to compile module %s: %w", name, err)
		}
		compiled = append(compiled, &module{name: name, filename: src.Filename, prog: prog})
	}

	for _, m := range compiled {
		h.modules[m.name] = m
		h.order = append(h.order, m.name)
	}
	return nil
}

// HasModule reports whether require(name) would resolve
func (h *Handle) HasModule(name string) bool {
	_, ok := h.resolve("", name)
	return ok
}

// Modules returns installed module names in install order
func (h *Handle) Modules() []string {
	return append([]string{}, h.order...)
}

// Packages returns the distinct top-level package names
func (h *Handle) Packages() []string {
	seen := make(map[string]bool)
	for _, name := range h.order {
		pkg, _, _ := strings.Cut(name, "/")
		seen[strings.TrimSuffix(pkg, ".js")] = true
	}
	out := make([]string, 0, len(seen))
	for pkg := range seen {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

func cleanModuleName(name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "." {
		return ""
	}
	return name
}

// resolve maps a require specifier to an installed module. Relative
// specifiers are resolved against the requiring module's directory.
func (h *Handle) resolve(from, target string) (*module, bool) {
	base := target
	if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
		base = path.Join(path.Dir(from), target)
	}
	base = cleanModuleName(base)

	for _, candidate := range []string{base, base + ".js", base + "/index.js"} {
		if m, ok := h.modules[candidate]; ok {
			return m, true
		}
	}
	return nil, false
}

// requireFrom returns the require function seen by the module named from
func (h *Handle) requireFrom(from string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		target := call.Argument(0).String()

		m, ok := h.resolve(from, target)
		if !ok {
			h.throw("Cannot find module '%s'", target)
		}
		return h.load(m)
	}
}

func (h *Handle) load(m *module) goja.Value {
	if m.exports != nil {
		return m.exports
	}
	// A cycle sees the partially initialized exports
	if m.loading != nil {
		return m.loading.Get("exports")
	}

	obj := h.vm.NewObject()
	exports := h.vm.NewObject()
	_ = obj.Set("exports", exports)
	_ = obj.Set("id", m.name)
	m.loading = obj

	fnVal, err := h.vm.RunProgram(m.prog)
	if err != nil {
		m.loading = nil
		panic(err)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		m.loading = nil
		h.throw("module %s did not compile to a function", m.name)
	}

	_, err = fn(goja.Undefined(),
		exports,
		h.vm.ToValue(h.requireFrom(m.name)),
		obj,
		h.vm.ToValue(m.filename),
		h.vm.ToValue(path.Dir(m.name)),
	)
	m.loading = nil
	if err != nil {
		panic(err)
	}

	m.exports = obj.Get("exports")
	return m.exports
}
