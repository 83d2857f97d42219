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

// Package crypto provides the content-addressing helper the remote cache
// uses to name cached payloads after the URL or repository they came from.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash returns the hex-encoded sha256 digest of data. Strings and byte
// slices are hashed directly; any other value is JSON-encoded first.
func Hash(data any) string {
	hash := sha256.New()

	var err error
	switch asserted := data.(type) {
	case string:
		_, err = hash.Write([]byte(asserted))
	case []byte:
		_, err = hash.Write(asserted)
	default:
		err = json.NewEncoder(hash).Encode(data)
	}

	if err != nil {
		// Hashing an in-memory value cannot fail for any input this
		// package is ever called with.
		panic(fmt.Sprintf("failed to hash value: %v", err))
	}

	return hex.EncodeToString(hash.Sum(nil))
}
