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

// Package command implements the "command" plugin: a kubernator.yaml
// directory registers it to run an already-installed external generator
// (`helm template`, `kustomize build`, or any other binary that prints
// Kubernetes manifests to stdout) and feed its output into the same
// reconciliation pass regular manifest files populate. Grounded on
// original_source/.../kubernator/helm.py's HelmPlugin, which runs `helm
// template` through proc.py's ProcessRunner and hands the captured YAML
// to the same sync path as on-disk manifests; generalized here from one
// hardcoded tool to any command, since fetching or installing the tool
// itself is out of scope (spec.md §1's "tool-fetch helpers" non-goal) but
// invoking one already on $PATH is not.
package command

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"

	ctxframe "github.com/kubernator-io/kubernator/internal/context"
	"github.com/kubernator-io/kubernator/internal/plugin"
	"github.com/kubernator-io/kubernator/internal/procrunner"
	"github.com/kubernator-io/kubernator/internal/resource"
	"github.com/kubernator-io/kubernator/internal/schema"
	"github.com/kubernator-io/kubernator/internal/template"
)

func init() {
	plugin.Register("command", newPlugin)
}

// Sink receives every resource.Resource this plugin decodes from a
// generator's captured stdout.
type Sink func(res *resource.Resource)

// Bind wires the process-wide dynamic client, schema registry, and
// resource sink every "command" plugin instance needs. plugin.Factory
// only receives a directory's kubernator.yaml options, with no route to
// the process's shared dependencies, so cmd/kubernator calls Bind once,
// before the walk starts, the same way it constructs the built-in
// manifest-file collector directly rather than through the declarative
// registry.
func Bind(client dynamic.Interface, registry *schema.Registry, sink Sink) {
	sharedClient = client
	sharedRegistry = registry
	sharedSink = sink
}

var (
	sharedClient   dynamic.Interface
	sharedRegistry *schema.Registry
	sharedSink     Sink
)

// defaultTimeout bounds a generator invocation when a directory's
// kubernator.yaml does not set timeout_seconds.
const defaultTimeout = 30 * time.Second

type commandPlugin struct {
	plugin.Base

	args    []string
	timeout time.Duration
	engine  *template.Engine
}

// newPlugin builds a commandPlugin from a kubernator.yaml
// register_plugins entry's options: `args` (required, a list of strings —
// the argv to run) and `timeout_seconds` (optional).
func newPlugin(options map[string]any) (plugin.Plugin, error) {
	rawArgs, _ := options["args"].([]any)
	if len(rawArgs) == 0 {
		return nil, fmt.Errorf(`command plugin: "args" option is required and must be a non-empty list`)
	}
	args := make([]string, len(rawArgs))
	for i, a := range rawArgs {
		s, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("command plugin: args[%d] is not a string", i)
		}
		args[i] = s
	}

	timeout := defaultTimeout
	if raw, ok := options["timeout_seconds"].(float64); ok {
		timeout = time.Duration(raw * float64(time.Second))
	}

	return &commandPlugin{
		Base:    plugin.Base{PluginName: "command"},
		args:    args,
		timeout: timeout,
		engine:  template.New(),
	}, nil
}

// HandleAfterScript runs the configured command with the directory's
// kubernator.yaml already applied, captures its stdout, renders every
// string field against the directory's context frame the same way
// on-disk manifests are (spec.md §4.7), and feeds each decoded document
// into the shared sink as a bound resource.Resource.
func (c *commandPlugin) HandleAfterScript(ctx *ctxframe.Frame, cwd string) error {
	if sharedSink == nil || sharedClient == nil || sharedRegistry == nil {
		return fmt.Errorf("command plugin: Bind was never called with a client/registry/sink")
	}

	out, err := procrunner.RunCapturingOutput(context.Background(), c.args, procrunner.Options{
		Timeout: c.timeout,
	})
	if err != nil {
		return fmt.Errorf("command plugin: run %v in %s: %w", c.args, cwd, err)
	}

	data := ctx.Flatten()
	source := resource.Source(strings.Join(c.args, " "))

	decoder := k8syaml.NewYAMLOrJSONDecoder(strings.NewReader(out), 4096)
	for {
		var raw map[string]any
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("command plugin: decode output of %v: %w", c.args, err)
		}
		if len(raw) == 0 {
			continue
		}

		if err := c.engine.RenderManifest(raw, data); err != nil {
			return fmt.Errorf("command plugin: rendering templates: %w", err)
		}

		manifest := &unstructured.Unstructured{Object: raw}
		res, err := resource.New(sharedClient, sharedRegistry, manifest, source)
		if err != nil {
			return fmt.Errorf("command plugin: %w", err)
		}
		sharedSink(res)
	}
}
