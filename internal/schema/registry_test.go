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

package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"

	"github.com/kubernator-io/kubernator/internal/k8skey"
)

func widgetCRD() *apiextensionsv1.CustomResourceDefinition {
	preserveUnknown := true
	crd := &apiextensionsv1.CustomResourceDefinition{}
	crd.Name = "widgets.example.com"
	crd.Spec.Group = "example.com"
	crd.Spec.Scope = apiextensionsv1.NamespaceScoped
	crd.Spec.Names = apiextensionsv1.CustomResourceDefinitionNames{
		Kind:     "Widget",
		Singular: "widget",
		Plural:   "widgets",
	}
	crd.Spec.Versions = []apiextensionsv1.CustomResourceDefinitionVersion{
		{
			Name:    "v1",
			Served:  true,
			Storage: true,
			Schema: &apiextensionsv1.CustomResourceValidation{
				OpenAPIV3Schema: &apiextensionsv1.JSONSchemaProps{
					Type: "object",
					Properties: map[string]apiextensionsv1.JSONSchemaProps{
						"spec": {
							Type: "object",
							Properties: map[string]apiextensionsv1.JSONSchemaProps{
								"replicas": {Type: "integer"},
							},
						},
						"status": {
							Type:                   "object",
							XPreserveUnknownFields: &preserveUnknown,
						},
					},
				},
			},
		},
	}
	return crd
}

const deploymentOpenAPI = `{
  "paths": {
    "/apis/apps/v1/namespaces/{namespace}/deployments": {
      "get": {"x-kubernetes-group-version-kind": {"group": "apps", "version": "v1", "kind": "Deployment"}}
    },
    "/apis/apps/v1/namespaces/{namespace}/deployments/{name}": {
      "get": {"x-kubernetes-group-version-kind": {"group": "apps", "version": "v1", "kind": "Deployment"}}
    }
  },
  "definitions": {
    "io.k8s.api.apps.v1.Deployment": {
      "x-kubernetes-group-version-kind": [{"group": "apps", "version": "v1", "kind": "Deployment"}],
      "properties": {"spec": {"type": "object"}}
    }
  }
}`

func TestBuildFromOpenAPI(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.BuildFromOpenAPI([]byte(deploymentOpenAPI)))

	def, ok := r.Get(k8skey.DefKey{Group: "apps", Version: "v1", Kind: "Deployment"})
	require.True(t, ok)
	require.Equal(t, "deployments", def.Plural)
	require.True(t, def.Namespaced)
	require.False(t, def.Custom)
}

func TestGetForManifest(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.BuildFromOpenAPI([]byte(deploymentOpenAPI)))

	def, ok := r.GetForManifest("apps/v1", "Deployment")
	require.True(t, ok)
	require.Equal(t, "deployments", def.Plural)

	_, ok = r.GetForManifest("v1", "Pod")
	require.False(t, ok)
}

func TestNamespaceHardcodedPlural(t *testing.T) {
	def := NewFromOpenAPIPaths(k8skey.DefKey{Version: "v1", Kind: "Namespace"}, map[string]any{}, nil)
	require.Equal(t, "namespaces", def.Plural)
	require.False(t, def.Namespaced)
}

// TestAddCRDThenResolveCustomResource covers spec.md §8's CRD-then-CR
// scenario: a CRD registered at runtime must immediately resolve and bind
// for a custom resource manifest, the same way a built-in kind resolves
// from the OpenAPI document.
func TestAddCRDThenResolveCustomResource(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddCRD(widgetCRD()))

	def, ok := r.GetForManifest("example.com/v1", "Widget")
	require.True(t, ok)
	require.True(t, def.Custom)
	require.True(t, def.Namespaced)
	require.Equal(t, "widgets", def.Plural)

	require.NoError(t, def.PopulateAPI())
	require.Equal(t, "widgets", def.GVR().Resource)
	require.Equal(t, "example.com", def.GVR().Group)
	require.Equal(t, "v1", def.GVR().Version)
}

func TestAsGVKListAcceptsSingleAndList(t *testing.T) {
	var single any
	require.NoError(t, json.Unmarshal([]byte(`{"group":"apps","version":"v1","kind":"Deployment"}`), &single))
	require.Len(t, asGVKList(single), 1)

	var list any
	require.NoError(t, json.Unmarshal([]byte(`[{"group":"apps","version":"v1","kind":"Deployment"},{"group":"apps","version":"v1beta1","kind":"Deployment"}]`), &list))
	require.Len(t, asGVKList(list), 2)
}
