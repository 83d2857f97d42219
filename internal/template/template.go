/*
Copyright 2025 The Kubernator Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package template implements the embedded-value template engine from
// spec.md §4.7: custom `{${ }$}` delimiters (chosen to avoid collisions
// with Helm/Go-template or Kubernetes string content that already uses
// `{{ }}`), a collecting undefined-variable counter, and a finalizer that
// re-renders any produced value that itself still contains the
// delimiters, enabling one level of value-references-value indirection.
//
// Grounded on internal/mutation/mutation.go's templateFuncMap/
// applyResourceTemplateMutation, which already wires
// github.com/Masterminds/sprig/v3 into text/template (that file uses
// html/template; this engine renders into arbitrary manifest field
// values, including ones later embedded in shell args or YAML, where
// HTML-escaping would corrupt the output, so text/template is used here
// instead — see DESIGN.md).
package template

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

const (
	leftDelim  = "{${"
	rightDelim = "}$}"
)

// Engine renders templates against a context, tracking undefined-variable
// lookups and interning finalizer-produced templates by source string, per
// spec.md §4.7.
type Engine struct {
	mu    sync.Mutex
	cache map[string]*template.Template
}

// New returns a ready-to-use Engine.
func New() *Engine {
	return &Engine{cache: map[string]*template.Template{}}
}

func funcMap() template.FuncMap {
	return sprig.TxtFuncMap()
}

// Render parses (or reuses a cached parse of) source and executes it
// against data, then applies the finalizer: if the rendered string still
// contains the engine's delimiters, it is itself parsed and rendered
// against the same data, allowing one level of indirection. It returns an
// error if any undefined variable was referenced during either pass.
func (e *Engine) Render(source string, data any) (string, error) {
	out, undefined, err := e.renderOnce(source, data)
	if err != nil {
		return "", err
	}
	if undefined > 0 {
		return "", fmt.Errorf("template %q referenced %d undefined value(s)", source, undefined)
	}

	if strings.Contains(out, leftDelim) && strings.Contains(out, rightDelim) {
		finalized, finalUndefined, err := e.renderOnce(out, data)
		if err != nil {
			return "", fmt.Errorf("finalizing rendered value %q: %w", out, err)
		}
		if finalUndefined > 0 {
			return "", fmt.Errorf("finalizer pass of %q referenced %d undefined value(s)", out, finalUndefined)
		}
		return finalized, nil
	}

	return out, nil
}

// missingKeyMarker is the substring text/template embeds in the error it
// raises for an unresolved map key under Option("missingkey=error"); its
// presence is how renderOnce tells "undefined variable" apart from any
// other execution failure.
const missingKeyMarker = "map has no entry for key"

func (e *Engine) renderOnce(source string, data any) (string, int, error) {
	tpl, err := e.parse(source)
	if err != nil {
		return "", 0, fmt.Errorf("parsing template %q: %w", source, err)
	}

	counter := &undefinedCounter{}
	rendered, err := counter.executeCountingUndefined(tpl, source, data)
	if err != nil {
		return "", 0, err
	}

	return rendered, counter.count, nil
}

// parse returns the cached *template.Template for source, compiling and
// interning it on first use, per spec.md §4.7's "interned and cached by
// their source string" requirement.
func (e *Engine) parse(source string) (*template.Template, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tpl, ok := e.cache[source]; ok {
		return tpl, nil
	}

	tpl, err := template.New(source).Delims(leftDelim, rightDelim).Funcs(funcMap()).Option("missingkey=error").Parse(source)
	if err != nil {
		return nil, err
	}

	e.cache[source] = tpl
	return tpl, nil
}

// undefinedCounter re-executes a template one field access at a time when
// an undefined map key aborts the render, swapping in a zero value for
// the offending key and incrementing count, so a single render can report
// how many distinct references were unresolved instead of failing on the
// first one. text/template has no hook to observe a missing key without
// aborting execution, so this retry loop is the engine's collecting
// substitute for it.
type undefinedCounter struct {
	count int
}

func (c *undefinedCounter) executeCountingUndefined(tpl *template.Template, source string, data any) (string, error) {
	known, isMap := asStringMap(data)

	for attempt := 0; ; attempt++ {
		var buf bytes.Buffer
		execData := any(data)
		if isMap {
			execData = known
		}

		err := tpl.Execute(&buf, execData)
		if err == nil {
			return buf.String(), nil
		}

		if !isMap || !strings.Contains(err.Error(), missingKeyMarker) || attempt > 64 {
			return "", fmt.Errorf("executing template %q: %w", source, err)
		}

		key := missingKeyFromError(err.Error())
		if key == "" || known[key] != nil {
			return "", fmt.Errorf("executing template %q: %w", source, err)
		}

		known[key] = ""
		c.count++
	}
}

func asStringMap(data any) (map[string]any, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, true
}

// RenderManifest deep-walks obj, rendering every string leaf through
// Render against data and replacing it in place, the manifest-wide
// counterpart to internal/mutation/mutation.go's
// applyResourceTemplateMutation, which performs the same walk-and-replace
// over a single Kubernetes object's fields.
func (e *Engine) RenderManifest(obj map[string]any, data any) error {
	for k, v := range obj {
		rendered, err := e.renderValue(v, data)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		obj[k] = rendered
	}
	return nil
}

func (e *Engine) renderValue(v any, data any) (any, error) {
	switch typed := v.(type) {
	case string:
		if !strings.Contains(typed, leftDelim) {
			return typed, nil
		}
		return e.Render(typed, data)
	case map[string]any:
		if err := e.RenderManifest(typed, data); err != nil {
			return nil, err
		}
		return typed, nil
	case []any:
		for i, item := range typed {
			rendered, err := e.renderValue(item, data)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			typed[i] = rendered
		}
		return typed, nil
	default:
		return typed, nil
	}
}

// missingKeyFromError extracts the key name from text/template's
// `map has no entry for key "foo"` execution error.
func missingKeyFromError(msg string) string {
	idx := strings.Index(msg, missingKeyMarker)
	if idx == -1 {
		return ""
	}
	rest := msg[idx+len(missingKeyMarker):]
	start := strings.Index(rest, `"`)
	if start == -1 {
		return ""
	}
	rest = rest[start+1:]
	end := strings.Index(rest, `"`)
	if end == -1 {
		return ""
	}
	return rest[:end]
}
