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

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"

	ctxframe "github.com/kubernator-io/kubernator/internal/context"
	"github.com/kubernator-io/kubernator/internal/plugin"
	"github.com/kubernator-io/kubernator/internal/resource"
	"github.com/kubernator-io/kubernator/internal/schema"
	"github.com/kubernator-io/kubernator/internal/template"
	"github.com/kubernator-io/kubernator/internal/walker"
)

// resourceCollector is the built-in plugin that decodes every manifest
// file a directory holds (any *.yaml/*.yml other than kubernator.yaml
// itself) into a resource.Resource, appending to an ordered list that
// becomes the reconciliation pass's input, per spec.md §4.2's "resources
// are collected in the order their directories are visited" ordering
// guarantee. Every string field is first rendered against the directory's
// context frame, per spec.md §4.7, so `{${ .whatever }$}` embedded in a
// manifest resolves against whatever the enclosing kubernator.yaml chain
// has `set`.
type resourceCollector struct {
	plugin.Base

	client   dynamic.Interface
	registry *schema.Registry
	engine   *template.Engine

	ctx       *ctxframe.Frame
	resources []*resource.Resource
	errs      []error
}

func newResourceCollector(client dynamic.Interface, registry *schema.Registry) *resourceCollector {
	return &resourceCollector{
		Base:     plugin.Base{PluginName: "resource-collector"},
		client:   client,
		registry: registry,
		engine:   template.New(),
	}
}

// Append adds res to the collected resource list, letting other plugins
// (e.g. internal/plugins/command) feed manifests they generate into the
// same ordered list regular manifest files populate.
func (c *resourceCollector) Append(res *resource.Resource) {
	c.resources = append(c.resources, res)
}

func (c *resourceCollector) HandleAfterDir(ctx *ctxframe.Frame, cwd string) error {
	c.ctx = ctx

	entries, err := os.ReadDir(cwd)
	if err != nil {
		return fmt.Errorf("list %s: %w", cwd, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == walker.ScriptFileName {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(cwd, name)
		if err := c.loadFile(path); err != nil {
			c.errs = append(c.errs, err)
		}
	}

	return nil
}

func (c *resourceCollector) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data := c.ctx.Flatten()

	decoder := k8syaml.NewYAMLOrJSONDecoder(f, 4096)
	for {
		var raw map[string]any
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode %s: %w", path, err)
		}
		if len(raw) == 0 {
			continue
		}

		if err := c.engine.RenderManifest(raw, data); err != nil {
			return fmt.Errorf("%s: rendering templates: %w", path, err)
		}

		manifest := &unstructured.Unstructured{Object: raw}
		res, err := resource.New(c.client, c.registry, manifest, resource.Source(path))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		c.resources = append(c.resources, res)
	}
}
