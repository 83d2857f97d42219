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

// Package schema implements the resource definition registry described in
// spec.md §4.1: it loads a cluster's OpenAPI document, indexes
// ResourceDefs by (group, version, kind), and accepts CustomResourceDefinitions
// registered at runtime. Grounded on internal/discovery/client.go from the
// teacher repository, which does the same OpenAPI/CRD duality for a single
// GVK at a time; this package generalizes that into a registry that is
// built once from the full document and then grows incrementally.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	apiextensionsinternal "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsv1beta1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1beta1"
	apiserverschema "k8s.io/apiextensions-apiserver/pkg/apiserver/schema"
	structuralvalidation "k8s.io/apiextensions-apiserver/pkg/apiserver/schema/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/kubernator-io/kubernator/internal/k8skey"
)

const gvkExtensionKey = "x-kubernetes-group-version-kind"

// Registry is the mutable mapping ResourceDefKey -> ResourceDef described
// in spec.md §3, plus the secondary path index used to resolve plurality
// and scope for built-in kinds. It is safe for concurrent reads once
// BuildFromOpenAPI has returned; AddCRD takes a lock because CRDs can be
// registered while a directory walk (running on the single cooperative
// goroutine, per spec.md §5) is still discovering more of them.
type Registry struct {
	mu    sync.RWMutex
	defs  map[k8skey.DefKey]*ResourceDef
	paths map[k8skey.DefKey][]string
}

// NewRegistry returns an empty registry. Use BuildFromOpenAPI to populate
// it from a cluster document before looking anything up.
func NewRegistry() *Registry {
	return &Registry{
		defs:  map[k8skey.DefKey]*ResourceDef{},
		paths: map[k8skey.DefKey][]string{},
	}
}

// openAPIDocument is the minimal shape of a Kubernetes swagger.json this
// package cares about: a path -> operations map, and a definitions map
// keyed by schema name.
type openAPIDocument struct {
	Paths       map[string]map[string]json.RawMessage `json:"paths"`
	Definitions map[string]map[string]any             `json:"definitions"`
}

// BuildFromOpenAPI implements the build procedure from spec.md §4.1: for
// each path, unify the x-kubernetes-group-version-kind of its non-parameter
// actions, and for each definition carrying that extension, produce a
// ResourceDef using the matching paths to extract plural/namespaced-ness.
func (r *Registry) BuildFromOpenAPI(raw []byte) error {
	var doc openAPIDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to decode OpenAPI document: %w", err)
	}

	pathsByKey := map[k8skey.DefKey][]string{}
	for path, actions := range doc.Paths {
		for verb, rawAction := range actions {
			if verb == "parameters" {
				continue
			}

			var action map[string]any
			if err := json.Unmarshal(rawAction, &action); err != nil {
				continue
			}

			gvk, ok := action[gvkExtensionKey].(map[string]any)
			if !ok {
				continue
			}

			key := defKeyFromExtension(gvk)
			pathsByKey[key] = appendUnique(pathsByKey[key], path)
		}
	}

	defs := map[k8skey.DefKey]*ResourceDef{}
	for _, def := range doc.Definitions {
		gvkList, ok := def[gvkExtensionKey]
		if !ok {
			continue
		}

		for _, entry := range asGVKList(gvkList) {
			key := defKeyFromExtension(entry)
			defs[key] = NewFromOpenAPIPaths(key, def, pathsByKey[key])
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = pathsByKey
	for key, def := range defs {
		r.defs[key] = def
	}

	return nil
}

// asGVKList normalizes the x-kubernetes-group-version-kind extension,
// which the OpenAPI document may encode as either a single object or a
// list of objects (a definition can be used by more than one GVK).
func asGVKList(raw any) []map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return []map[string]any{v}
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, entry := range v {
			if m, ok := entry.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func defKeyFromExtension(gvk map[string]any) k8skey.DefKey {
	str := func(k string) string {
		s, _ := gvk[k].(string)
		return s
	}
	return k8skey.DefKey{Group: str("group"), Version: str("version"), Kind: str("kind")}
}

func appendUnique(paths []string, path string) []string {
	for _, p := range paths {
		if p == path {
			return paths
		}
	}
	return append(paths, path)
}

// Get looks up a ResourceDef by its (group, version, kind) key.
func (r *Registry) Get(key k8skey.DefKey) (*ResourceDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key]
	return def, ok
}

// GetForManifest looks up the ResourceDef matching a manifest's apiVersion
// and kind fields.
func (r *Registry) GetForManifest(apiVersion, kind string) (*ResourceDef, bool) {
	group, version := k8skey.ToGroupAndVersion(apiVersion)
	return r.Get(k8skey.DefKey{Group: group, Version: version, Kind: kind})
}

// AddCRD registers one ResourceDef per spec.versions[] entry of a v1
// CustomResourceDefinition, becoming visible to subsequent validations as
// soon as this call returns, per spec.md §3's CRD lifecycle note.
func (r *Registry) AddCRD(crd *apiextensionsv1.CustomResourceDefinition) error {
	group := crd.Spec.Group
	kind := crd.Spec.Names.Kind
	singular := crd.Spec.Names.Singular
	plural := crd.Spec.Names.Plural
	namespaced := crd.Spec.Scope == apiextensionsv1.NamespaceScoped

	added := make([]*ResourceDef, 0, len(crd.Spec.Versions))
	for _, v := range crd.Spec.Versions {
		if v.Schema == nil || v.Schema.OpenAPIV3Schema == nil {
			return fmt.Errorf("CRD %s version %s has no openAPIV3Schema", crd.Name, v.Name)
		}

		if err := validateStructural(v.Schema.OpenAPIV3Schema); err != nil {
			return fmt.Errorf("CRD %s version %s is not structurally valid: %w", crd.Name, v.Name, err)
		}

		props, err := toMap(v.Schema.OpenAPIV3Schema)
		if err != nil {
			return fmt.Errorf("CRD %s version %s: %w", crd.Name, v.Name, err)
		}

		added = append(added, NewFromCRDVersion(group, kind, singular, plural, namespaced, v.Name, props))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range added {
		r.defs[def.Key] = def
	}

	return nil
}

// AddCRDV1beta1 registers a legacy apiextensions.k8s.io/v1beta1 CRD,
// reading the schema from spec.validation.openAPIV3Schema as spec.md
// §4.1 describes for that dialect. v1beta1's JSONSchemaProps is
// structurally identical on the wire to its v1 counterpart, so the schema
// is carried across via a JSON round-trip rather than a generated
// conversion, keeping this path a thin adapter onto AddCRD.
func (r *Registry) AddCRDV1beta1(crd *apiextensionsv1beta1.CustomResourceDefinition) error {
	if crd.Spec.Validation == nil || crd.Spec.Validation.OpenAPIV3Schema == nil {
		return fmt.Errorf("CRD %s has no spec.validation.openAPIV3Schema", crd.Name)
	}

	schemaProps := &apiextensionsv1.JSONSchemaProps{}
	raw, err := json.Marshal(crd.Spec.Validation.OpenAPIV3Schema)
	if err != nil {
		return fmt.Errorf("CRD %s: %w", crd.Name, err)
	}
	if err := json.Unmarshal(raw, schemaProps); err != nil {
		return fmt.Errorf("CRD %s: %w", crd.Name, err)
	}

	v1crd := &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: crd.ObjectMeta,
	}
	v1crd.Name = crd.Name
	v1crd.Spec.Group = crd.Spec.Group
	v1crd.Spec.Scope = apiextensionsv1.ResourceScope(crd.Spec.Scope)
	v1crd.Spec.Names = apiextensionsv1.CustomResourceDefinitionNames{
		Kind:     crd.Spec.Names.Kind,
		Singular: crd.Spec.Names.Singular,
		Plural:   crd.Spec.Names.Plural,
	}

	versions := crd.Spec.Versions
	if len(versions) == 0 && crd.Spec.Version != "" {
		versions = []apiextensionsv1beta1.CustomResourceDefinitionVersion{{
			Name: crd.Spec.Version, Served: true, Storage: true,
		}}
	}

	for _, v := range versions {
		v1crd.Spec.Versions = append(v1crd.Spec.Versions, apiextensionsv1.CustomResourceDefinitionVersion{
			Name:    v.Name,
			Served:  v.Served,
			Storage: v.Storage,
			Schema:  &apiextensionsv1.CustomResourceValidation{OpenAPIV3Schema: schemaProps},
		})
	}

	return r.AddCRD(v1crd)
}

// validateStructural runs the schema through the real structural-schema
// validator the Kubernetes API server itself uses
// (k8s.io/apiextensions-apiserver/pkg/apiserver/schema), per spec.md
// §4.1's "OpenAPI-v3 validator" requirement.
func validateStructural(props *apiextensionsv1.JSONSchemaProps) error {
	internalProps := &apiextensionsinternal.JSONSchemaProps{}
	if err := apiextensionsv1.Convert_v1_JSONSchemaProps_To_apiextensions_JSONSchemaProps(props, internalProps, nil); err != nil {
		return fmt.Errorf("convert schema to internal version: %w", err)
	}

	structural, err := apiserverschema.NewStructural(internalProps)
	if err != nil {
		return err
	}

	if errs := structuralvalidation.ValidateStructuralCompleteness(structural, field.NewPath("openAPIV3Schema")); len(errs) > 0 {
		return errs.ToAggregate()
	}

	return nil
}

// toMap converts a typed JSONSchemaProps into the untyped map[string]any
// representation the rest of this package, and the resource validator in
// §4.2, work with.
func toMap(props *apiextensionsv1.JSONSchemaProps) (map[string]any, error) {
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}
