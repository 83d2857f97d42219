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

// Package plugin defines the lifecycle hook interface and the
// compile-time plugin registry from spec.md §4.5 / §9: a static,
// constructor-registered lookup table replaces the source's package-
// module scanning, and plugins that only care about a few hooks embed
// Base rather than implementing every method.
//
// Grounded on App.register_plugin/_run_handlers in
// original_source/.../kubernator/app.py, which dispatches hooks with
// Python's hasattr/getattr against a plain list of handler objects; the
// Go equivalent fixes the hook set as an interface and supplies no-op
// defaults via Base, the idiomatic substitute for "does this object
// happen to define this method".
package plugin

import (
	"fmt"

	"github.com/kubernator-io/kubernator/internal/context"
)

// Plugin is the full lifecycle hook set a registered plugin may
// implement, matching the handle_* methods App._run_handlers dispatches
// in the teacher's original source.
type Plugin interface {
	Name() string

	HandleInit(ctx *context.Frame) error
	HandleStart(ctx *context.Frame) error
	HandleBeforeDir(ctx *context.Frame, cwd string) error
	HandleBeforeScript(ctx *context.Frame, cwd string) error
	HandleAfterScript(ctx *context.Frame, cwd string) error
	HandleAfterDir(ctx *context.Frame, cwd string) error
	HandleApply(ctx *context.Frame) error
	HandleVerify(ctx *context.Frame) error
	HandleSummary(ctx *context.Frame) error
	HandleShutdown(ctx *context.Frame) error
}

// Base supplies a no-op implementation of every Plugin method. Real
// plugins embed Base and override only the hooks they care about, the
// Go analogue of Python's "handler has no such attribute, skip it".
type Base struct {
	PluginName string
}

func (b Base) Name() string { return b.PluginName }

func (Base) HandleInit(*context.Frame) error                   { return nil }
func (Base) HandleStart(*context.Frame) error                  { return nil }
func (Base) HandleBeforeDir(*context.Frame, string) error      { return nil }
func (Base) HandleBeforeScript(*context.Frame, string) error   { return nil }
func (Base) HandleAfterScript(*context.Frame, string) error    { return nil }
func (Base) HandleAfterDir(*context.Frame, string) error       { return nil }
func (Base) HandleApply(*context.Frame) error                  { return nil }
func (Base) HandleVerify(*context.Frame) error                 { return nil }
func (Base) HandleSummary(*context.Frame) error                { return nil }
func (Base) HandleShutdown(*context.Frame) error                { return nil }

// Factory constructs a plugin instance from the options map an in-tree
// script's `register_plugin(name, **options)` call passed, per spec.md
// §6.
type Factory func(options map[string]any) (Plugin, error)

var registry = map[string]Factory{}

// Register adds name to the process-wide, compile-time plugin registry.
// Called from a plugin package's init(), per spec.md §9's "plugins
// register themselves via a constructor-time call into a process-wide
// registry" note.
func Register(name string, factory Factory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("plugin: %q already registered", name))
	}
	registry[name] = factory
}

// Lookup resolves a registered plugin factory by name.
func Lookup(name string) (Factory, bool) {
	factory, ok := registry[name]
	return factory, ok
}

// Names lists every compile-time-registered plugin name, for
// diagnostics.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
