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

// Package walker implements the directory walker and plugin lifecycle
// from spec.md §4.5: a LIFO stack of (context frame, path) pairs,
// before/after-dir and before/after-script hooks fired in registration
// order (reverse for the after_* family), and mid-walk plugin
// registration with synthetic hook replay. Grounded on App.run /
// App._run_handlers / App.handle_after_dir in
// original_source/.../kubernator/app.py.
//
// The source drives each directory's script by compiling and exec'ing a
// `.kubernator.py` file with two injected names, `ktor` and `logger`.
// Go has no safe runtime-eval equivalent; this package instead treats
// each directory's script as a declarative `kubernator.yaml` document
// parsed with sigs.k8s.io/yaml, which a Walker interprets against the
// same context-frame and plugin-registration primitives the original
// script contract exposed through `ktor`.
package walker

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kubernator-io/kubernator/internal/context"
	"github.com/kubernator-io/kubernator/internal/globs"
	"github.com/kubernator-io/kubernator/internal/plugin"
)

// fsPath adapts an absolute filesystem path for use with an fs.FS rooted
// at "/" (as cmd/kubernator wires it via os.DirFS("/")), since fs.FS
// forbids a leading slash. Local and remote-checkout paths are both
// plain absolute paths, so routing everything through one root keeps
// walk_local and walk_remote uniform.
func fsPath(p string) string {
	clean := filepath.Clean(p)
	if clean == "/" {
		return "."
	}
	return strings.TrimPrefix(clean, "/")
}

// ScriptFileName is the per-directory script file name, the spec-driven
// idiomatic-Go replacement for the source's `.kubernator.py`.
const ScriptFileName = "kubernator.yaml"

type stackEntry struct {
	frame *context.Frame
	path  string
}

// hookFunc is one lifecycle hook, bound by a plugin.Plugin method
// expression (e.g. plugin.Plugin.HandleInit) or a closure over a
// per-directory argument (e.g. cwd for HandleBeforeDir).
type hookFunc func(plugin.Plugin, *context.Frame) error

// Walker drives the directory traversal and plugin lifecycle over a
// root path.
type Walker struct {
	FS  fs.FS
	Log *zap.SugaredLogger

	DefaultIncludes *globs.Globs
	DefaultExcludes *globs.Globs

	rootFrame *context.Frame
	plugins   []plugin.Plugin
	stack     []stackEntry

	initFired  bool
	startFired bool

	current           *stackEntry
	currentIncludes   *globs.Globs
	currentExcludes   *globs.Globs
	beforeDirFired    bool
	beforeScriptFired bool

	newPaths []stackEntry
}

// New returns a Walker seeded with root and the plugins to run for the
// entire walk.
func New(fsys fs.FS, log *zap.SugaredLogger, root *context.Frame, rootPath string, plugins ...plugin.Plugin) *Walker {
	includes := globs.New("*")
	excludes := globs.New(".*")
	includes.Freeze()
	excludes.Freeze()

	w := &Walker{
		FS:              fsys,
		Log:             log,
		DefaultIncludes: includes,
		DefaultExcludes: excludes,
		rootFrame:       root,
		plugins:         append([]plugin.Plugin{}, plugins...),
	}
	w.stack = []stackEntry{{frame: root.Child(), path: rootPath}}
	return w
}

// RegisterPlugin appends p to the active plugin set, replaying whatever
// lifecycle hooks should already have fired so the new plugin observes
// a consistent state, per spec.md §4.5's mid-walk registration note.
func (w *Walker) RegisterPlugin(p plugin.Plugin) error {
	w.plugins = append(w.plugins, p)

	frame := w.currentFrame()

	if w.initFired {
		if err := p.HandleInit(frame); err != nil {
			return fmt.Errorf("synthetic init for plugin %q: %w", p.Name(), err)
		}
	}
	if w.startFired {
		if err := p.HandleStart(frame); err != nil {
			return fmt.Errorf("synthetic start for plugin %q: %w", p.Name(), err)
		}
	}
	if w.beforeDirFired {
		if err := p.HandleBeforeDir(frame, w.currentCwd()); err != nil {
			return fmt.Errorf("synthetic before_dir for plugin %q: %w", p.Name(), err)
		}
	}
	if w.beforeScriptFired {
		if err := p.HandleBeforeScript(frame, w.currentCwd()); err != nil {
			return fmt.Errorf("synthetic before_script for plugin %q: %w", p.Name(), err)
		}
	}

	return nil
}

func (w *Walker) currentFrame() *context.Frame {
	if w.current != nil {
		return w.current.frame
	}
	return w.rootFrame
}

func (w *Walker) currentCwd() string {
	if w.current != nil {
		return w.current.path
	}
	return ""
}

// EnqueueLocal schedules path for traversal as a child of the current
// directory's context frame, implementing `walk_local`/`_add_local`
// from the teacher's original source.
func (w *Walker) EnqueueLocal(path string) {
	w.newPaths = append(w.newPaths, stackEntry{frame: w.currentFrame().Child(), path: path})
}

// CurrentIncludes and CurrentExcludes expose the active directory's glob
// sets so a script interpreter can mutate them (`ktor.app.includes`,
// `ktor.app.excludes` in the original source).
func (w *Walker) CurrentIncludes() *globs.Globs { return w.currentIncludes }
func (w *Walker) CurrentExcludes() *globs.Globs { return w.currentExcludes }

// ScriptInterpreter executes the in-tree script found at scriptPath
// against ctx, the current directory's context frame.
type ScriptInterpreter func(w *Walker, ctx *context.Frame, cwd, scriptPath string) error

// Run drives the full lifecycle: init, start, the directory loop, and
// the four terminal phases (apply, verify, summary, shutdown), in that
// order, per spec.md §4.5.
func (w *Walker) Run(interpret ScriptInterpreter) error {
	if err := w.runForward(w.rootFrame, func(p plugin.Plugin, ctx *context.Frame) error { return p.HandleInit(ctx) }); err != nil {
		return err
	}
	w.initFired = true

	if err := w.runForward(w.rootFrame, func(p plugin.Plugin, ctx *context.Frame) error { return p.HandleStart(ctx) }); err != nil {
		return err
	}
	w.startFired = true

	for {
		entry, ok := w.pop()
		if !ok {
			break
		}

		if err := w.visitDirectory(entry, interpret); err != nil {
			return err
		}
	}

	phases := []hookFunc{
		func(p plugin.Plugin, ctx *context.Frame) error { return p.HandleApply(ctx) },
		func(p plugin.Plugin, ctx *context.Frame) error { return p.HandleVerify(ctx) },
		func(p plugin.Plugin, ctx *context.Frame) error { return p.HandleSummary(ctx) },
		func(p plugin.Plugin, ctx *context.Frame) error { return p.HandleShutdown(ctx) },
	}
	for _, hook := range phases {
		if err := w.runReverse(w.plugins, w.rootFrame, hook); err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) visitDirectory(entry stackEntry, interpret ScriptInterpreter) error {
	w.current = &entry
	w.beforeDirFired = false
	w.beforeScriptFired = false
	w.newPaths = nil

	w.currentIncludes = clonePatterns(w.DefaultIncludes)
	w.currentExcludes = clonePatterns(w.DefaultExcludes)

	if err := w.runForward(entry.frame, func(p plugin.Plugin, ctx *context.Frame) error {
		return p.HandleBeforeDir(ctx, entry.path)
	}); err != nil {
		return err
	}
	w.beforeDirFired = true

	scriptPath := filepath.Join(entry.path, ScriptFileName)
	if _, err := fs.Stat(w.FS, fsPath(scriptPath)); err == nil {
		if err := w.runForward(entry.frame, func(p plugin.Plugin, ctx *context.Frame) error {
			return p.HandleBeforeScript(ctx, entry.path)
		}); err != nil {
			return err
		}
		w.beforeScriptFired = true

		if interpret != nil {
			if err := interpret(w, entry.frame, entry.path, scriptPath); err != nil {
				return fmt.Errorf("execute %s: %w", scriptPath, err)
			}
		}

		if err := w.runReverse(w.plugins, entry.frame, func(p plugin.Plugin, ctx *context.Frame) error {
			return p.HandleAfterScript(ctx, entry.path)
		}); err != nil {
			return err
		}
	}

	if err := w.runReverse(w.plugins, entry.frame, func(p plugin.Plugin, ctx *context.Frame) error {
		return p.HandleAfterDir(ctx, entry.path)
	}); err != nil {
		return err
	}

	subdirs, err := w.scanSubdirectories(entry.path)
	if err != nil {
		return err
	}
	for _, dir := range subdirs {
		w.newPaths = append(w.newPaths, stackEntry{frame: entry.frame.Child(), path: dir})
	}

	for i := len(w.newPaths) - 1; i >= 0; i-- {
		w.stack = append(w.stack, w.newPaths[i])
	}

	w.current = nil
	return nil
}

// scanSubdirectories lists entry's immediate subdirectories, filtered by
// the current directory's include/exclude globs, in lexicographic
// order, per spec.md §4.5's "pushes each onto the stack in reverse
// order so that traversal remains lexicographic" rule.
func (w *Walker) scanSubdirectories(dir string) ([]string, error) {
	entries, err := fs.ReadDir(w.FS, fsPath(dir))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !w.currentIncludes.MatchAny(e.Name()) {
			continue
		}
		if w.currentExcludes.MatchAny(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

func (w *Walker) pop() (stackEntry, bool) {
	if len(w.stack) == 0 {
		return stackEntry{}, false
	}
	last := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	return last, true
}

func (w *Walker) runForward(ctx *context.Frame, hook hookFunc) error {
	for _, p := range w.plugins {
		if err := hook(p, ctx); err != nil {
			return fmt.Errorf("plugin %q: %w", p.Name(), err)
		}
	}
	return nil
}

func (w *Walker) runReverse(plugins []plugin.Plugin, ctx *context.Frame, hook hookFunc) error {
	for i := len(plugins) - 1; i >= 0; i-- {
		if err := hook(plugins[i], ctx); err != nil {
			return fmt.Errorf("plugin %q: %w", plugins[i].Name(), err)
		}
	}
	return nil
}

func clonePatterns(g *globs.Globs) *globs.Globs {
	return globs.New(g.Patterns()...)
}
