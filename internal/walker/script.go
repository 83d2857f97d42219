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

package walker

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"sigs.k8s.io/yaml"

	"github.com/kubernator-io/kubernator/internal/context"
	"github.com/kubernator-io/kubernator/internal/plugin"
)

// PluginSpec names a plugin to register and the options to construct it
// with, the declarative equivalent of the source's
// `ktor.register_plugin(name, **options)` call.
type PluginSpec struct {
	Name    string         `json:"name"`
	Options map[string]any `json:"options,omitempty"`
}

// RemoteSpec names a git repository, an optional ref, and a path within
// it to walk as if it were a local subdirectory, the declarative
// equivalent of App.walk_remote in the teacher's original source.
type RemoteSpec struct {
	Repo string `json:"repo"`
	Ref  string `json:"ref,omitempty"`
	Path string `json:"path,omitempty"`
}

// ScriptFile is the decoded form of a directory's kubernator.yaml, the
// declarative stand-in for the source's exec'd `.kubernator.py`.
type ScriptFile struct {
	// Set assigns configuration values on the current directory's
	// context frame, equivalent to `ktor.<key> = <value>` assignments
	// in the original script contract.
	Set map[string]any `json:"set,omitempty"`

	// RegisterPlugins instantiates and registers each named plugin via
	// the registry lookup passed to DefaultInterpreter/ApplyScript, equivalent to
	// `ktor.register_plugin(...)`.
	RegisterPlugins []PluginSpec `json:"register_plugins,omitempty"`

	// Includes and Excludes are front-inserted into the current
	// directory's traversal glob sets. A subdirectory is walked when its
	// name matches any include and no exclude, so pattern order does not
	// change the result.
	Includes []string `json:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty"`

	// WalkLocal enqueues each listed path, relative to the directory
	// containing this script, for traversal as a child directory.
	WalkLocal []string `json:"walk_local,omitempty"`

	// WalkRemote checks out a git repository and enqueues a path within
	// it for traversal, as if it were a local subdirectory.
	WalkRemote []RemoteSpec `json:"walk_remote,omitempty"`
}

// RemoteCheckout resolves a RemoteSpec to a local filesystem path holding
// a checkout of Repo at Ref, so DefaultInterpreter can enqueue Path
// beneath it. internal/cache.GitCache implements this.
type RemoteCheckout interface {
	Checkout(repoURL string) (path, resolvedRef string, err error)
}

// DefaultInterpreter returns a ScriptInterpreter that decodes each
// directory's kubernator.yaml and applies it against the walker: setting
// context values, registering plugins by looking them up in registry,
// extending the active include/exclude globs, and enqueueing local and
// remote subdirectories.
func DefaultInterpreter(registry func(name string) (plugin.Factory, bool), remotes RemoteCheckout) ScriptInterpreter {
	return func(w *Walker, ctx *context.Frame, cwd, scriptPath string) error {
		raw, err := fs.ReadFile(w.FS, fsPath(scriptPath))
		if err != nil {
			return fmt.Errorf("read %s: %w", scriptPath, err)
		}

		var script ScriptFile
		if err := yaml.Unmarshal(raw, &script); err != nil {
			return fmt.Errorf("parse %s: %w", scriptPath, err)
		}

		return ApplyScript(w, ctx, cwd, &script, registry, remotes)
	}
}

// ApplyScript applies a decoded ScriptFile's directives to w, exported so
// callers that source kubernator.yaml some other way (embedded,
// generated, fetched) can still drive the same semantics DefaultInterpreter
// uses.
func ApplyScript(w *Walker, ctx *context.Frame, cwd string, script *ScriptFile, registry func(name string) (plugin.Factory, bool), remotes RemoteCheckout) error {
	for key, value := range script.Set {
		ctx.Set(key, value)
	}

	for _, spec := range script.RegisterPlugins {
		factory, ok := registry(spec.Name)
		if !ok {
			return fmt.Errorf("kubernator.yaml %s: unknown plugin %q", cwd, spec.Name)
		}
		p, err := factory(spec.Options)
		if err != nil {
			return fmt.Errorf("kubernator.yaml %s: construct plugin %q: %w", cwd, spec.Name, err)
		}
		if err := w.RegisterPlugin(p); err != nil {
			return fmt.Errorf("kubernator.yaml %s: register plugin %q: %w", cwd, spec.Name, err)
		}
	}

	if len(script.Includes) > 0 {
		if err := w.CurrentIncludes().ExtendFirst(script.Includes); err != nil {
			return fmt.Errorf("kubernator.yaml %s: includes: %w", cwd, err)
		}
	}
	if len(script.Excludes) > 0 {
		if err := w.CurrentExcludes().ExtendFirst(script.Excludes); err != nil {
			return fmt.Errorf("kubernator.yaml %s: excludes: %w", cwd, err)
		}
	}

	for _, path := range script.WalkLocal {
		w.EnqueueLocal(filepath.Join(cwd, path))
	}

	for _, rs := range script.WalkRemote {
		if remotes == nil {
			return fmt.Errorf("kubernator.yaml %s: walk_remote %q: no remote checkout configured", cwd, rs.Repo)
		}
		repoURL := rs.Repo
		if rs.Ref != "" {
			repoURL += "?ref=" + rs.Ref
		}
		root, _, err := remotes.Checkout(repoURL)
		if err != nil {
			return fmt.Errorf("kubernator.yaml %s: walk_remote %q: %w", cwd, rs.Repo, err)
		}
		w.EnqueueLocal(filepath.Join(root, rs.Path))
	}

	return nil
}
