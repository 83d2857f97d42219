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

// Package kerrors holds the named error kinds from spec.md §7: typed
// wrappers around k8s.io/apimachinery/pkg/api/errors so a fatal failure
// can be classified and reported with the resource's description and
// provenance, without losing apierrors.IsNotFound/IsInvalid/IsConflict
// compatibility across the wrap.
package kerrors

import "fmt"

// Kind names one of the error categories spec.md §7 enumerates.
type Kind string

const (
	KindSchema         Kind = "schema"
	KindIdentityDrift  Kind = "identity-drift"
	KindDuplicate      Kind = "duplicate-resource"
	KindConflict       Kind = "conflict"
	KindImmutable      Kind = "immutable"
	KindStrictDecoding Kind = "strict-decoding"
	KindTimeout        Kind = "timeout"
	KindSubprocess     Kind = "subprocess"
)

// Error is a classified, resource-scoped failure. Err always carries the
// underlying error so errors.As/errors.Is against apimachinery's error
// types keeps working through this wrapper.
type Error struct {
	Kind        Kind
	Description string
	Source      string
	Err         error
}

func (e *Error) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Description, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs a classified Error.
func New(kind Kind, description, source string, err error) *Error {
	return &Error{Kind: kind, Description: description, Source: source, Err: err}
}
