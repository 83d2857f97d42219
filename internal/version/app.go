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

package version

// These variables get fed by ldflags during compilation.
var (
	// gitVersion is usually the output of `git describe` for the commit
	// the binary was built from; not necessarily a tag name.
	gitVersion string
	// gitHead is the full SHA of the commit the binary was built from.
	gitHead string
)

// AppVersion is the build's version information, fed by ldflags;
// cmd/kubernator logs its GitVersion at startup.
type AppVersion struct {
	GitVersion string
	GitHead    string
}

func NewAppVersion() AppVersion {
	return AppVersion{
		GitVersion: gitVersion,
		GitHead:    gitHead,
	}
}

func NewFakeAppVersion() AppVersion {
	return AppVersion{
		GitVersion: "v0.0.0-0-test",
		GitHead:    "0000000000000000000000000000000000000000",
	}
}
