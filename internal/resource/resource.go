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

// Package resource implements the typed manifest wrapper described in
// spec.md §4.2: a Resource carries its identity key, its manifest, the
// schema it was bound against, and a provenance string, and exposes the
// four CRUD operations against the live cluster through
// k8s.io/client-go/dynamic. Grounded on the fetch/decide/act shape of
// internal/sync/object_syncer.go in the teacher repository, narrowed from
// a two-cluster syncer down to a single-cluster reconciler.
package resource

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"

	"github.com/kubernator-io/kubernator/internal/k8skey"
	"github.com/kubernator-io/kubernator/internal/schema"
)

// FieldManager is the field manager identity used for every create and
// server-side-apply patch this tool issues, per spec.md §4.2.
const FieldManager = "kubernator"

// Source describes where a resource's manifest came from: a file path, a
// remote URL, or a plugin-synthesized location, for use in diagnostics.
type Source string

// Resource is the typed wrapper described in spec.md §3: identity key,
// manifest, the ResourceDef it was bound against, and its provenance.
type Resource struct {
	Key      k8skey.Key
	Manifest *unstructured.Unstructured
	Def      *schema.ResourceDef
	Source   Source

	client dynamic.Interface
}

// New constructs a Resource from a decoded manifest and binds it to the
// matching ResourceDef in the registry. The key is derived from the
// manifest per spec.md's "key = derive(manifest)" invariant.
func New(client dynamic.Interface, registry *schema.Registry, manifest *unstructured.Unstructured, source Source) (*Resource, error) {
	if err := ValidateMinimal(manifest); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	def, ok := registry.GetForManifest(manifest.GetAPIVersion(), manifest.GetKind())
	if !ok {
		return nil, fmt.Errorf("%s: no schema registered for %s/%s", source, manifest.GetAPIVersion(), manifest.GetKind())
	}

	if err := def.PopulateAPI(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	if def.Namespaced && manifest.GetNamespace() == "" {
		return nil, fmt.Errorf("%s: %s/%s %q is namespaced but carries no metadata.namespace", source, manifest.GetAPIVersion(), manifest.GetKind(), manifest.GetName())
	}

	r := &Resource{
		Key:      deriveKey(def, manifest),
		Manifest: manifest,
		Def:      def,
		Source:   source,
		client:   client,
	}

	return r, nil
}

// deriveKey computes the ResourceKey the way spec.md §3 requires: group,
// kind, name, and — for namespaced kinds only — namespace.
func deriveKey(def *schema.ResourceDef, manifest *unstructured.Unstructured) k8skey.Key {
	key := k8skey.Key{
		Group: def.Key.Group,
		Kind:  def.Key.Kind,
		Name:  manifest.GetName(),
	}
	if def.Namespaced {
		key.Namespace = manifest.GetNamespace()
	}
	return key
}

// Rederive recomputes the identity key from the current manifest and
// reports whether it still matches r.Key, implementing the "a changed
// identity key is a fatal error" check from spec.md §4.4 step 1.
func (r *Resource) Rederive() (k8skey.Key, bool) {
	next := deriveKey(r.Def, r.Manifest)
	return next, next == r.Key
}

func (r *Resource) resourceInterface() dynamic.ResourceInterface {
	ri := r.client.Resource(r.Def.GroupVersionResource())
	if r.Def.Namespaced {
		return ri.Namespace(r.Key.Namespace)
	}
	return ri
}

// Get reads the live object, returning an apierrors.IsNotFound error when
// it is absent, per spec.md §4.2.
func (r *Resource) Get(ctx context.Context) (*unstructured.Unstructured, error) {
	live, err := r.resourceInterface().Get(ctx, r.Key.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.Key, err)
	}
	return live, nil
}

// Create issues a create, field-managed as Kubernator, honoring dryRun and
// the requested field-validation strictness.
func (r *Resource) Create(ctx context.Context, manifest *unstructured.Unstructured, dryRun bool, validation k8skey.FieldValidation) (*unstructured.Unstructured, error) {
	opts := metav1.CreateOptions{FieldManager: FieldManager, FieldValidation: string(validation)}
	if dryRun {
		opts.DryRun = []string{metav1.DryRunAll}
	}

	created, err := r.resourceInterface().Create(ctx, manifest, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", r.Key, err)
	}
	return created, nil
}

// Patch issues a patch using either k8skey.JSONPatch or
// k8skey.ServerSideApply, matching the two patch families spec.md §4.2
// names (`JSON_PATCH` and `SERVER_SIDE_PATCH`/apply).
func (r *Resource) Patch(ctx context.Context, body []byte, patchType k8skey.PatchType, dryRun, force bool) (*unstructured.Unstructured, error) {
	opts := metav1.PatchOptions{FieldManager: FieldManager}
	if dryRun {
		opts.DryRun = []string{metav1.DryRunAll}
	}
	if force {
		t := true
		opts.Force = &t
	}

	var wireType types.PatchType
	switch patchType {
	case k8skey.JSONPatch:
		wireType = types.JSONPatchType
	case k8skey.ServerSideApply:
		wireType = types.ApplyPatchType
	default:
		return nil, fmt.Errorf("patch %s: unknown patch type %v", r.Key, patchType)
	}

	patched, err := r.resourceInterface().Patch(ctx, r.Key.Name, wireType, body, opts)
	if err != nil {
		return nil, fmt.Errorf("patch %s: %w", r.Key, err)
	}
	return patched, nil
}

// Delete removes the object under the given propagation policy, per
// spec.md §4.2.
func (r *Resource) Delete(ctx context.Context, dryRun bool, propagation k8skey.PropagationPolicy) error {
	policy := metav1.DeletionPropagation(propagation)
	opts := metav1.DeleteOptions{PropagationPolicy: &policy}
	if dryRun {
		opts.DryRun = []string{metav1.DryRunAll}
	}

	if err := r.resourceInterface().Delete(ctx, r.Key.Name, opts); err != nil {
		return fmt.Errorf("delete %s: %w", r.Key, err)
	}
	return nil
}

// IsNotFound is a thin re-export so callers in internal/reconcile don't
// need to import k8s.io/apimachinery/pkg/api/errors directly just to
// classify a Get failure.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// IsInvalid reports whether err is the HTTP 422 the API server returns
// for an invalid object, such as an immutable-field rejection, per
// spec.md §4.4 step 4.b. Strict-decoding failures arrive as HTTP 400
// and are not matched here.
func IsInvalid(err error) bool {
	return apierrors.IsInvalid(err)
}

// StatusCauses extracts the structured failure causes from a
// StatusError, used to classify immutable-field rejections and to
// extract field-validation warnings (spec.md §4.4 steps 4.a/4.b). Every
// error this package's CRUD methods return is wrapped with fmt.Errorf's
// %w, so this uses errors.As rather than a direct type assertion to see
// through that wrapping.
func StatusCauses(err error) []metav1.StatusCause {
	var statusErr apierrors.APIStatus
	if !errors.As(err, &statusErr) {
		return nil
	}
	details := statusErr.Status().Details
	if details == nil {
		return nil
	}
	return details.Causes
}
