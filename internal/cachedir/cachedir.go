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

// Package cachedir resolves the persisted-state layout from spec.md §6:
// everything lives under <user-cache>/kubernator/, with subdirectories
// for the HTTP object cache, the Git repository cache, and the Helm
// repository registry. Grounded on the crossplane crank beta validate
// command's ~/-expansion of a configurable cache directory in the
// example pack.
package cachedir

import (
	"os"
	"path/filepath"

	"github.com/kubernator-io/kubernator/internal/crypto"
)

// Dir resolves <user-cache>/kubernator, honoring $KUBERNATOR_CACHE_DIR
// as an override for tests and CI.
func Dir() (string, error) {
	if override := os.Getenv("KUBERNATOR_CACHE_DIR"); override != "" {
		return override, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "kubernator"), nil
}

// HTTPObjectPath returns the cache entry path for the given URL under
// k8s/<sha256(url)>, plus its ".cache" metadata sidecar.
func HTTPObjectPath(root, url string) (payload, sidecar string) {
	base := filepath.Join(root, "k8s", crypto.Hash(url))
	return base, base + ".cache"
}

// GitRepoPath returns the shallow-clone directory for a Git cache key,
// under git/<sha256(key)>/.
func GitRepoPath(root, cacheKey string) string {
	return filepath.Join(root, "git", crypto.Hash(cacheKey))
}

// HelmRepositoriesPath returns the path to the Helm repository registry
// file, helm/repositories.yaml.
func HelmRepositoriesPath(root string) string {
	return filepath.Join(root, "helm", "repositories.yaml")
}

// EnsureDir creates the directory containing path, if it does not
// already exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
