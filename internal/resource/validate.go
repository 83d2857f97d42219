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

package resource

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubernator-io/kubernator/internal/schema"
)

// ValidateMinimal checks the three fields spec.md §3 requires of every
// manifest before it is even looked up in the registry: apiVersion, kind,
// and metadata.name.
func ValidateMinimal(manifest *unstructured.Unstructured) error {
	if manifest.GetAPIVersion() == "" {
		return fmt.Errorf("manifest is missing apiVersion")
	}
	if manifest.GetKind() == "" {
		return fmt.Errorf("manifest is missing kind")
	}
	if manifest.GetName() == "" {
		return fmt.Errorf("manifest is missing metadata.name")
	}
	return nil
}

// ValidationWarning is one violation ValidateAgainstSchema found: the
// property path and what is wrong with it. ValidateAgainstSchema returns
// one per violation rather than failing fast, so every problem is
// reported in one pass.
type ValidationWarning struct {
	Path    string
	Message string
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}

// ValidateAgainstSchema performs a shallow structural check: required
// top-level properties exist, and any property whose schema declares a
// format recognized by internal/schema.CheckFormat matches that format.
// Full recursive OpenAPI validation is delegated to the server itself via
// dry-run (spec.md §4.4 step 4.a); this check exists to catch the most
// common authoring mistakes before a round trip to the cluster.
func ValidateAgainstSchema(def *schema.ResourceDef, manifest *unstructured.Unstructured) []ValidationWarning {
	if def.Schema == nil {
		return nil
	}

	var warnings []ValidationWarning
	props, _ := def.Schema["properties"].(map[string]any)
	required, _ := def.Schema["required"].([]any)

	content := manifest.UnstructuredContent()
	for _, req := range required {
		name, ok := req.(string)
		if !ok {
			continue
		}
		if _, present := content[name]; !present {
			warnings = append(warnings, ValidationWarning{Path: name, Message: "required property is missing"})
		}
	}

	for name, rawPropSchema := range props {
		propSchema, ok := rawPropSchema.(map[string]any)
		if !ok {
			continue
		}
		format, _ := propSchema["format"].(string)
		if format == "" {
			continue
		}
		value, present := content[name]
		if !present {
			continue
		}
		if !schema.CheckFormat(format, value) {
			warnings = append(warnings, ValidationWarning{Path: name, Message: fmt.Sprintf("value does not satisfy format %q", format)})
		}
	}

	return warnings
}
