package runtime

import (
	"sort"
	"strconv"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/document"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// modelKey marks model proxies so they serialize as references
const modelKey = "__model_id__"

// newDocBinding builds the global "doc" object
func (h *Handle) newDocBinding() *goja.Object {
	obj := h.vm.NewObject()

	_ = obj.Set("id", h.doc.ID())

	_ = obj.Set("model", func(call goja.FunctionCall) goja.Value {
		if goja.IsUndefined(call.Argument(0)) || call.Argument(0).String() == "" {
			h.throw("doc.model requires a type")
		}
		typ := call.Argument(0).String()
		attrs, _ := h.toGo(call.Argument(1)).(map[string]any)
		ref := h.doc.NewModel(typ, attrs)
		return h.modelProxy(ref.ID, typ)
	})

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		m, ok := h.doc.Model(id)
		if !ok {
			return goja.Null()
		}
		return h.modelProxy(m.ID, m.Type)
	})

	_ = obj.Set("addRoot", func(call goja.FunctionCall) goja.Value {
		if err := h.doc.AddRoot(h.modelID(call.Argument(0)), document.SetterInternal); err != nil {
			h.throw("doc.addRoot: %v", err)
		}
		return goja.Undefined()
	})

	_ = obj.Set("removeRoot", func(call goja.FunctionCall) goja.Value {
		if err := h.doc.RemoveRoot(h.modelID(call.Argument(0)), document.SetterInternal); err != nil {
			h.throw("doc.removeRoot: %v", err)
		}
		return goja.Undefined()
	})

	_ = obj.Set("setTitle", func(call goja.FunctionCall) goja.Value {
		h.doc.SetTitle(call.Argument(0).String(), document.SetterInternal)
		return goja.Undefined()
	})

	_ = obj.Set("title", func(goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.doc.Title())
	})

	_ = obj.Set("roots", func(goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.doc.Roots())
	})

	return obj
}

// modelProxy exposes one document model to scripts
func (h *Handle) modelProxy(id, typ string) goja.Value {
	obj := h.vm.NewObject()
	_ = obj.DefineDataProperty(modelKey, h.vm.ToValue(id), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	_ = obj.Set("id", id)
	_ = obj.Set("type", typ)

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		v, err := h.doc.Attr(id, call.Argument(0).String())
		if err != nil {
			h.throw("%v", err)
		}
		return h.toJS(v)
	})

	_ = obj.Set("set", func(call goja.FunctionCall) goja.Value {
		attr := call.Argument(0).String()
		if err := h.doc.Set(id, attr, h.toGo(call.Argument(1)), document.SetterInternal); err != nil {
			h.throw("%v", err)
		}
		return obj
	})

	_ = obj.Set("on", func(call goja.FunctionCall) goja.Value {
		attr := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			h.throw("%s.on(%q) requires a function", id, attr)
		}
		err := h.doc.Watch(id, attr, func(old, new any, setter document.Setter) {
			h.invoke(fn, id+"."+attr, h.toJS(old), h.toJS(new), h.vm.ToValue(setterName(setter)))
		})
		if err != nil {
			h.throw("%v", err)
		}
		return obj
	})

	return obj
}

func setterName(s document.Setter) string {
	if s == document.SetterExternal {
		return "external"
	}
	return "internal"
}

// newLocationBinding builds the global "location" object
func (h *Handle) newLocationBinding() *goja.Object {
	loc := h.doc.Location()
	obj := h.vm.NewObject()

	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		return h.toJS(loc.Get(call.Argument(0).String()))
	})

	_ = obj.Set("keys", func(goja.FunctionCall) goja.Value {
		keys := make([]string, 0, len(document.LocationKeys))
		keys = append(keys, document.LocationKeys...)
		sort.Strings(keys)
		return h.vm.ToValue(keys)
	})

	_ = obj.Set("on", func(call goja.FunctionCall) goja.Value {
		key := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			h.throw("location.on(%q) requires a function", key)
		}
		err := loc.Watch(key, func(old, new any) {
			h.invoke(fn, "location."+key, h.toJS(old), h.toJS(new))
		})
		if err != nil {
			h.throw("%v", err)
		}
		return goja.Undefined()
	})

	return obj
}

// modelID accepts a proxy or a plain id
func (h *Handle) modelID(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if id := obj.Get(modelKey); id != nil && !goja.IsUndefined(id) {
			return id.String()
		}
		if id := obj.Get("id"); id != nil && !goja.IsUndefined(id) {
			return id.String()
		}
	}
	return v.String()
}

// maxValueDepth bounds the nesting of attribute values
const maxValueDepth = 64

// toGo converts a script value into document attribute form: numbers are
// float64, binary data is []byte and model proxies become {"id": ...}.
// Cyclic or overly deep values throw a script error.
func (h *Handle) toGo(v goja.Value) any {
	return h.toGoValue(v, make(map[*goja.Object]bool), 0)
}

func (h *Handle) toGoValue(v goja.Value, active map[*goja.Object]bool, depth int) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	obj, isObj := v.(*goja.Object)
	if !isObj {
		switch t := v.Export().(type) {
		case int64:
			return float64(t)
		default:
			return t
		}
	}

	if id := obj.Get(modelKey); id != nil && !goja.IsUndefined(id) {
		return map[string]any{"id": id.String()}
	}

	switch t := obj.Export().(type) {
	case goja.ArrayBuffer:
		return append([]byte{}, t.Bytes()...)
	case []byte:
		return append([]byte{}, t...)
	}

	if obj.ClassName() == "Function" {
		return nil
	}

	if active[obj] {
		h.throw("attribute value contains a cycle")
	}
	if depth >= maxValueDepth {
		h.throw("attribute value nested deeper than %d levels", maxValueDepth)
	}
	active[obj] = true
	defer delete(active, obj)

	if obj.ClassName() == "Array" {
		n := int(obj.Get("length").ToInteger())
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = h.toGoValue(obj.Get(strconv.Itoa(i)), active, depth+1)
		}
		return out
	}

	keys := obj.Keys()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if val := obj.Get(k); val != nil {
			if fn, ok := val.(*goja.Object); ok && fn.ClassName() == "Function" {
				continue
			}
			out[k] = h.toGoValue(val, active, depth+1)
		}
	}
	return out
}

// toJS converts a document attribute value into a script value
func (h *Handle) toJS(v any) goja.Value {
	switch t := v.(type) {
	case nil:
		return goja.Null()
	case []byte:
		return h.vm.ToValue(h.vm.NewArrayBuffer(append([]byte{}, t...)))
	case map[string]any:
		obj := h.vm.NewObject()
		for k, val := range t {
			if err := obj.Set(k, h.toJS(val)); err != nil {
				h.logger.Debug("Failed to convert attribute", zap.String("key", k), zap.Error(err))
			}
		}
		return obj
	case []any:
		items := make([]any, len(t))
		for i, val := range t {
			items[i] = h.toJS(val)
		}
		return h.vm.NewArray(items...)
	default:
		return h.vm.ToValue(t)
	}
}
