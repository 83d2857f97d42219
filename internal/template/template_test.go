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

package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderCustomDelimiters(t *testing.T) {
	e := New()
	out, err := e.Render(`region is {${ .Region }$}`, map[string]any{"Region": "us-east-1"})
	require.NoError(t, err)
	require.Equal(t, "region is us-east-1", out)
}

func TestRenderDoesNotCollideWithDoubleBraces(t *testing.T) {
	e := New()
	out, err := e.Render(`{{.NotATemplateVariable}} plain {${ .Name }$}`, map[string]any{"Name": "widget"})
	require.NoError(t, err)
	require.Equal(t, "{{.NotATemplateVariable}} plain widget", out)
}

func TestRenderFailsOnUndefinedVariable(t *testing.T) {
	e := New()
	_, err := e.Render(`{${ .Missing }$}`, map[string]any{"Region": "us-east-1"})
	require.Error(t, err)
}

func TestFinalizerReEvaluatesEmbeddedDelimiters(t *testing.T) {
	e := New()
	data := map[string]any{
		"Indirect": "{${ .Region }$}",
		"Region":   "eu-west-1",
	}
	out, err := e.Render(`{${ .Indirect }$}`, data)
	require.NoError(t, err)
	require.Equal(t, "eu-west-1", out)
}

func TestSprigFunctionsAvailable(t *testing.T) {
	e := New()
	out, err := e.Render(`{${ .Name | upper }$}`, map[string]any{"Name": "widget"})
	require.NoError(t, err)
	require.Equal(t, "WIDGET", out)
}

func TestRenderManifestWalksNestedMapsAndLists(t *testing.T) {
	e := New()
	obj := map[string]any{
		"metadata": map[string]any{
			"name": "{${ .Name }$}-svc",
		},
		"spec": map[string]any{
			"replicas": 3,
			"args":     []any{"--region={${ .Region }$}", "--verbose"},
		},
	}

	err := e.RenderManifest(obj, map[string]any{"Name": "widget", "Region": "us-east-1"})
	require.NoError(t, err)

	metadata := obj["metadata"].(map[string]any)
	require.Equal(t, "widget-svc", metadata["name"])

	spec := obj["spec"].(map[string]any)
	require.Equal(t, 3, spec["replicas"])
	require.Equal(t, []any{"--region=us-east-1", "--verbose"}, spec["args"])
}

func TestRenderManifestLeavesPlainStringsUntouched(t *testing.T) {
	e := New()
	obj := map[string]any{"kind": "ConfigMap"}

	err := e.RenderManifest(obj, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "ConfigMap", obj["kind"])
}

func TestRenderManifestPropagatesUndefinedVariableError(t *testing.T) {
	e := New()
	obj := map[string]any{"name": "{${ .Missing }$}"}

	err := e.RenderManifest(obj, map[string]any{})
	require.Error(t, err)
}

func TestTemplatesAreInternedBySourceString(t *testing.T) {
	e := New()
	source := `{${ .Name }$}`
	_, err := e.Render(source, map[string]any{"Name": "a"})
	require.NoError(t, err)
	_, ok := e.cache[source]
	require.True(t, ok)

	out, err := e.Render(source, map[string]any{"Name": "b"})
	require.NoError(t, err)
	require.Equal(t, "b", out)
	require.Len(t, e.cache, 1)
}
