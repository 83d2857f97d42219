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

package command

import (
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
	k8sschema "k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	ctxframe "github.com/kubernator-io/kubernator/internal/context"
	"github.com/kubernator-io/kubernator/internal/plugin"
	"github.com/kubernator-io/kubernator/internal/resource"
	"github.com/kubernator-io/kubernator/internal/schema"
)

const widgetOpenAPI = `{
  "paths": {
    "/apis/example.com/v1/namespaces/{namespace}/widgets": {
      "get": {"x-kubernetes-group-version-kind": {"group": "example.com", "version": "v1", "kind": "Widget"}}
    }
  },
  "definitions": {
    "com.example.v1.Widget": {
      "x-kubernetes-group-version-kind": [{"group": "example.com", "version": "v1", "kind": "Widget"}],
      "properties": {"spec": {"type": "object"}}
    }
  }
}`

var widgetGVR = k8sschema.GroupVersionResource{Group: "example.com", Version: "v1", Resource: "widgets"}

func TestCommandPluginIsRegisteredByName(t *testing.T) {
	factory, ok := plugin.Lookup("command")
	require.True(t, ok)
	require.NotNil(t, factory)
}

func TestNewPluginRequiresArgsOption(t *testing.T) {
	_, err := newPlugin(map[string]any{})
	require.Error(t, err)
}

func TestHandleAfterScriptDecodesGeneratedManifestsIntoSink(t *testing.T) {
	registry := schema.NewRegistry()
	require.NoError(t, registry.BuildFromOpenAPI([]byte(widgetOpenAPI)))

	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[k8sschema.GroupVersionResource]string{widgetGVR: "WidgetList"})

	var collected []*resource.Resource
	Bind(client, registry, func(res *resource.Resource) { collected = append(collected, res) })

	manifest := "apiVersion: example.com/v1\n" +
		"kind: Widget\n" +
		"metadata:\n" +
		"  name: generated\n" +
		"  namespace: default\n" +
		"spec:\n" +
		"  replicas: 2\n"

	p, err := newPlugin(map[string]any{"args": []any{"printf", "%s", manifest}})
	require.NoError(t, err)

	cp := p.(*commandPlugin)
	err = cp.HandleAfterScript(ctxframe.NewRoot(), "/tmp")
	require.NoError(t, err)

	require.Len(t, collected, 1)
	require.Equal(t, "generated", collected[0].Key.Name)
}

func TestHandleAfterScriptFailsWithoutBind(t *testing.T) {
	sharedClient = nil
	sharedRegistry = nil
	sharedSink = nil

	cp := &commandPlugin{Base: plugin.Base{PluginName: "command"}, args: []string{"true"}}
	err := cp.HandleAfterScript(ctxframe.NewRoot(), "/tmp")
	require.Error(t, err)
}
