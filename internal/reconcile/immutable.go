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

package reconcile

import "github.com/kubernator-io/kubernator/internal/k8skey"

// DefaultImmutableChanges is the built-in (group, kind) -> propagation
// policy table from spec.md §4.4, consulted when a server-side-apply
// dry-run is rejected with an immutable-field signature.
var DefaultImmutableChanges = map[string]k8skey.PropagationPolicy{
	"apps/DaemonSet":            k8skey.Background,
	"apps/StatefulSet":          k8skey.Orphan,
	"apps/Deployment":           k8skey.Orphan,
	"storage.k8s.io/StorageClass": k8skey.Orphan,
	"core/Pod":                  k8skey.Background,
	"batch/Job":                 k8skey.Orphan,
}

func immutableKey(group, kind string) string {
	if group == "" {
		group = "core"
	}
	return group + "/" + kind
}
