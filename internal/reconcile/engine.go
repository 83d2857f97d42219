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

// Package reconcile implements the per-resource reconciliation pass from
// spec.md §4.4: transformers, a get/create/patch/recreate decision tree
// driven by a server-side-apply dry-run, strategic-merge instruction
// replay, JSON Patch diffing with exclusion-path filtering, and the
// immutable-field recreate path. Grounded on the fetch-decide-act shape
// of internal/sync/object_syncer.go, generalized from a two-cluster
// syncer into a single-cluster reconciler, with the JSON Patch diff
// itself grounded on generatePatch in
// pkg/reconcilerutil/actionclient.go (github.com/evanphx/json-patch's
// CreatePatch).
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubernator-io/kubernator/internal/dump"
	"github.com/kubernator-io/kubernator/internal/k8skey"
	"github.com/kubernator-io/kubernator/internal/kerrors"
	"github.com/kubernator-io/kubernator/internal/merge"
	"github.com/kubernator-io/kubernator/internal/resource"
)

// Mode selects how the final mutating call of each resource's decision
// tree is carried out, per spec.md §4.4's "outputs of the pass" note.
type Mode int

const (
	// ModeApply issues every call for real.
	ModeApply Mode = iota
	// ModeDryRun issues every call with the server-side dry-run flag set.
	ModeDryRun
	// ModeDump serializes every create/patch/delete as a dump.Record
	// instead of issuing it.
	ModeDump
)

// Transformer may replace a resource before it is reconciled. A nil
// return means unchanged, per spec.md §4.4 step 1.
type Transformer func(all []*resource.Resource, r *resource.Resource) (*resource.Resource, error)

// defaultExclusionPaths are the JSON-Patch path prefixes dropped from the
// reconciliation diff before deciding whether any operation remains, per
// spec.md §4.4.
var defaultExclusionPaths = []*regexp.Regexp{
	regexp.MustCompile(`^/metadata/managedFields`),
	regexp.MustCompile(`^/metadata/generation`),
	regexp.MustCompile(`^/metadata/creationTimestamp`),
	regexp.MustCompile(`^/metadata/resourceVersion`),
}

// Counters tracks how many create/patch/delete actions a pass performed
// (or would have performed, in ModeDryRun/ModeDump), per spec.md §4.4.
type Counters struct {
	Created int
	Patched int
	Deleted int
}

// Engine runs the reconciliation pass over an ordered resource list.
type Engine struct {
	Mode Mode
	Dump dump.Sink

	FieldValidation  k8skey.FieldValidation
	WarnFatal        bool
	ConflictRetryDelay time.Duration
	RecreateTimeout    time.Duration

	ImmutableChanges map[string]k8skey.PropagationPolicy
	ExclusionPaths   []*regexp.Regexp

	Log *zap.SugaredLogger

	transformers []Transformer
	Counters     Counters
	Warnings     []Warning
}

// New returns an Engine configured with spec.md §4.4's defaults.
func New(log *zap.SugaredLogger) *Engine {
	return &Engine{
		Mode:               ModeApply,
		FieldValidation:    k8skey.FieldValidationStrict,
		ConflictRetryDelay: 300 * time.Millisecond,
		RecreateTimeout:    10 * time.Second,
		ImmutableChanges:   DefaultImmutableChanges,
		ExclusionPaths:     defaultExclusionPaths,
		Log:                log,
	}
}

// Register appends a transformer; transformers run in reverse
// registration order, per spec.md §4.4 step 1.
func (e *Engine) Register(t Transformer) {
	e.transformers = append(e.transformers, t)
}

// Run reconciles every resource in all, strictly in order, per spec.md
// §5's "resource application is strictly sequential in insertion order"
// ordering guarantee.
func (e *Engine) Run(ctx context.Context, all []*resource.Resource) error {
	for i := range all {
		if err := e.reconcileOne(ctx, all, i); err != nil {
			return err
		}
	}

	if e.FieldValidation == k8skey.FieldValidationWarn && e.WarnFatal && len(e.Warnings) > 0 {
		return fmt.Errorf("field validation reported %d warning(s) across the apply pass", len(e.Warnings))
	}

	return nil
}

func (e *Engine) reconcileOne(ctx context.Context, all []*resource.Resource, idx int) error {
	res := all[idx]

	for i := len(e.transformers) - 1; i >= 0; i-- {
		replacement, err := e.transformers[i](all, res)
		if err != nil {
			return fmt.Errorf("transformer failed for %s: %w", res.Key, err)
		}
		if replacement == nil {
			continue
		}
		if next, _ := replacement.Rederive(); next != res.Key {
			return kerrors.New(kerrors.KindIdentityDrift, fmt.Sprintf("transformer changed identity of %s", res.Key), string(replacement.Source), fmt.Errorf("new key %s", next))
		}
		res = replacement
		all[idx] = res
	}

	// Required-property and format-extension checks against res.Def's
	// schema, per spec.md §3's "the manifest satisfies ... the OpenAPI
	// schema of its rdef" invariant. Folded into the same Warnings slice
	// strict-decoding rejections land in, so warn_fatal covers both.
	for _, w := range resource.ValidateAgainstSchema(res.Def, res.Manifest) {
		e.Warnings = append(e.Warnings, Warning{ResourceKey: res.Key.String(), Field: w.Path})
	}

	content := res.Manifest.UnstructuredContent()
	instrs, normalized, err := merge.Extract(content)
	if err != nil {
		return kerrors.New(kerrors.KindSchema, "failed to extract merge instructions", string(res.Source), err)
	}
	normalizedManifest := &unstructured.Unstructured{Object: normalized}

	live, err := res.Get(ctx)
	if err != nil {
		if !resource.IsNotFound(err) {
			return fmt.Errorf("get %s: %w", res.Key, err)
		}
		return e.create(ctx, res, normalizedManifest)
	}

	return e.patchOrRecreate(ctx, res, live, normalizedManifest, instrs)
}

func (e *Engine) create(ctx context.Context, res *resource.Resource, manifest *unstructured.Unstructured) error {
	_, err := e.doCreate(ctx, res, manifest)
	if err != nil {
		if warnings, ok := parseStrictDecodingWarnings(res.Key.String(), err); ok {
			e.Warnings = append(e.Warnings, warnings...)
			return nil
		}
		return fmt.Errorf("create %s: %w", res.Key, err)
	}

	e.Counters.Created++
	return nil
}

func (e *Engine) patchOrRecreate(ctx context.Context, res *resource.Resource, live, manifest *unstructured.Unstructured, instrs []merge.Instruction) error {
	body, err := json.Marshal(manifest.Object)
	if err != nil {
		return fmt.Errorf("encode normalized manifest for %s: %w", res.Key, err)
	}

	merged, err := res.Patch(ctx, body, k8skey.ServerSideApply, true, true)
	if err != nil {
		if isImmutableRejection(err) {
			policy := e.ImmutableChanges[immutableKey(res.Def.Key.Group, res.Def.Key.Kind)]
			if policy == "" {
				policy = k8skey.Background
			}
			return e.recreate(ctx, res, manifest, policy)
		}
		if warnings, ok := parseStrictDecodingWarnings(res.Key.String(), err); ok {
			e.Warnings = append(e.Warnings, warnings...)
			return nil
		}
		return fmt.Errorf("server-side apply dry-run for %s: %w", res.Key, err)
	}

	if err := merge.Apply(e.Log, instrs, merged.Object); err != nil {
		return fmt.Errorf("replay merge instructions for %s: %w", res.Key, err)
	}

	liveJSON, err := json.Marshal(live.Object)
	if err != nil {
		return fmt.Errorf("encode live object for %s: %w", res.Key, err)
	}
	mergedJSON, err := json.Marshal(merged.Object)
	if err != nil {
		return fmt.Errorf("encode merged object for %s: %w", res.Key, err)
	}

	ops, err := jsonpatch.CreatePatch(liveJSON, mergedJSON)
	if err != nil {
		return fmt.Errorf("diff %s: %w", res.Key, err)
	}

	filtered := make([]jsonpatch.JsonPatchOperation, 0, len(ops))
	for _, op := range ops {
		excluded := false
		for _, re := range e.ExclusionPaths {
			if re.MatchString(op.Path) {
				excluded = true
				break
			}
		}
		if !excluded {
			filtered = append(filtered, op)
		}
	}

	if len(filtered) == 0 {
		return nil
	}

	patchBody, err := json.Marshal(filtered)
	if err != nil {
		return fmt.Errorf("encode json patch for %s: %w", res.Key, err)
	}

	if _, err := e.doPatch(ctx, res, patchBody); err != nil {
		return fmt.Errorf("json patch %s: %w", res.Key, err)
	}

	e.Counters.Patched++
	return nil
}

func (e *Engine) recreate(ctx context.Context, res *resource.Resource, manifest *unstructured.Unstructured, policy k8skey.PropagationPolicy) error {
	if err := e.doDelete(ctx, res, policy); err != nil {
		return fmt.Errorf("delete %s for recreate: %w", res.Key, err)
	}
	e.Counters.Deleted++

	dryRun := e.Mode == ModeDryRun
	deadline := time.Now().Add(e.RecreateTimeout)

	for {
		_, err := e.doCreate(ctx, res, manifest)
		if err == nil {
			e.Counters.Created++
			return nil
		}
		if dryRun && apierrors.IsAlreadyExists(err) {
			e.Counters.Created++
			return nil
		}
		if !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("recreate %s: %w", res.Key, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("recreate %s: timed out waiting for delete to complete", res.Key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.ConflictRetryDelay):
		}
	}
}

func (e *Engine) doCreate(ctx context.Context, res *resource.Resource, manifest *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	if e.Mode == ModeDump {
		e.Dump.RecordCreate(manifest.Object)
		return manifest, nil
	}
	return res.Create(ctx, manifest, e.Mode == ModeDryRun, e.FieldValidation)
}

func (e *Engine) doPatch(ctx context.Context, res *resource.Resource, body []byte) (*unstructured.Unstructured, error) {
	if e.Mode == ModeDump {
		e.Dump.RecordPatch(res.Key, body)
		return nil, nil
	}
	return res.Patch(ctx, body, k8skey.JSONPatch, e.Mode == ModeDryRun, false)
}

func (e *Engine) doDelete(ctx context.Context, res *resource.Resource, policy k8skey.PropagationPolicy) error {
	if e.Mode == ModeDump {
		e.Dump.RecordDelete(res.Key, policy)
		return nil
	}
	return res.Delete(ctx, e.Mode == ModeDryRun, policy)
}
