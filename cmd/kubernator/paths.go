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

package main

import "path/filepath"

// absolutePath resolves path against the process's working directory, so
// the walker (which operates on an os.DirFS("/") rooted filesystem) can
// be handed a single consistent absolute root regardless of whether
// --path was given as relative or absolute.
func absolutePath(path string) (string, error) {
	return filepath.Abs(path)
}
