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

// Package k8skey holds the hashable identity types shared by the schema
// registry and the resource table: ResourceDefKey identifies a schema,
// ResourceKey identifies a live object.
package k8skey

import "fmt"

// DefKey is the (group, version, kind) identity of a schema. Group is
// empty for the core API group.
type DefKey struct {
	Group   string
	Version string
	Kind    string
}

func (k DefKey) String() string {
	if k.Group == "" {
		return fmt.Sprintf("%s/%s", k.Version, k.Kind)
	}
	return fmt.Sprintf("%s/%s/%s", k.Group, k.Version, k.Kind)
}

// ToGroupAndVersion splits a manifest's apiVersion field into its group
// and version components, following the same convention as apiVersion
// fields throughout Kubernetes: "group/version", or bare "version" for
// the core group.
func ToGroupAndVersion(apiVersion string) (group, version string) {
	for i := 0; i < len(apiVersion); i++ {
		if apiVersion[i] == '/' {
			return apiVersion[:i], apiVersion[i+1:]
		}
	}
	return "", apiVersion
}

// Key is the primary key of the in-memory resource table: (group, kind,
// name, namespace). Namespace is empty iff the kind is cluster-scoped.
type Key struct {
	Group     string
	Kind      string
	Name      string
	Namespace string
}

func (k Key) String() string {
	version := "v1"
	if k.Group != "" {
		version = k.Group
	}
	if k.Namespace != "" {
		return fmt.Sprintf("%s/%s/%s.%s", version, k.Kind, k.Name, k.Namespace)
	}
	return fmt.Sprintf("%s/%s/%s", version, k.Kind, k.Name)
}

// PatchType selects the wire format used for a patch call.
type PatchType int

const (
	JSONPatch PatchType = iota
	ServerSideApply
)

func (t PatchType) String() string {
	switch t {
	case JSONPatch:
		return "JSONPatch"
	case ServerSideApply:
		return "ServerSideApply"
	default:
		return "unknown"
	}
}

// PropagationPolicy selects the deletion cascade mode used for an
// immutable-field recreate (spec.md §4.4) or an explicit delete.
type PropagationPolicy string

const (
	Background PropagationPolicy = "Background"
	Foreground PropagationPolicy = "Foreground"
	Orphan     PropagationPolicy = "Orphan"
)

// FieldValidation selects how strictly the API server should decode a
// manifest on create/patch.
type FieldValidation string

const (
	FieldValidationIgnore FieldValidation = "Ignore"
	FieldValidationWarn   FieldValidation = "Warn"
	FieldValidationStrict FieldValidation = "Strict"
)
