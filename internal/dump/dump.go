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

// Package dump implements the dump-mode output format from spec.md §6:
// every create/patch/delete the reconciliation engine would otherwise
// issue is serialized as a record into an ordered sequence instead,
// encoded as a JSON array or a YAML sequence, optionally pretty-printed.
// Grounded on cmd/crd-puller/main.go's use of sigs.k8s.io/yaml for
// manifest-shaped output in the teacher repository.
package dump

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"

	"github.com/kubernator-io/kubernator/internal/k8skey"
)

// Method names the action a Record describes, matching the three record
// shapes in spec.md §6.
type Method string

const (
	MethodCreate Method = "create"
	MethodPatch  Method = "patch"
	MethodDelete Method = "delete"
)

// ResourceRef identifies the target of a patch or delete record.
type ResourceRef struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	Namespace  string `json:"namespace,omitempty"`
}

// Record is one entry of the dump sequence described in spec.md §6.
type Record struct {
	Method           Method          `json:"method"`
	Body             json.RawMessage `json:"body,omitempty"`
	Resource         *ResourceRef    `json:"resource,omitempty"`
	PropagationPolicy k8skey.PropagationPolicy `json:"propagation_policy,omitempty"`
}

// Sink accumulates records in application order, per spec.md §6's
// "records are emitted in application order" guarantee.
type Sink struct {
	records []Record
}

// RecordCreate appends a create record for the given manifest.
func (s *Sink) RecordCreate(manifest map[string]any) {
	body, _ := json.Marshal(manifest)
	s.records = append(s.records, Record{Method: MethodCreate, Body: body})
}

// RecordPatch appends a patch record; body is the already-encoded JSON
// Patch operation list.
func (s *Sink) RecordPatch(key k8skey.Key, body []byte) {
	s.records = append(s.records, Record{
		Method:   MethodPatch,
		Resource: refFromKey(key),
		Body:     json.RawMessage(body),
	})
}

// RecordDelete appends a delete record.
func (s *Sink) RecordDelete(key k8skey.Key, policy k8skey.PropagationPolicy) {
	s.records = append(s.records, Record{
		Method:            MethodDelete,
		Resource:          refFromKey(key),
		PropagationPolicy: policy,
	})
}

// Records returns the accumulated sequence.
func (s *Sink) Records() []Record {
	return s.records
}

func refFromKey(key k8skey.Key) *ResourceRef {
	apiVersion := "v1"
	if key.Group != "" {
		apiVersion = key.Group + "/v1"
	}
	return &ResourceRef{
		APIVersion: apiVersion,
		Kind:       key.Kind,
		Name:       key.Name,
		Namespace:  key.Namespace,
	}
}

// Format selects the wire encoding requested by the `-o` CLI flag.
type Format string

const (
	FormatJSON       Format = "json"
	FormatJSONPretty Format = "json-pretty"
	FormatYAML       Format = "yaml"
)

// Write encodes the sink's records in the requested format to w.
func Write(w io.Writer, format Format, s *Sink) error {
	records := s.Records()
	if records == nil {
		records = []Record{}
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		return enc.Encode(records)
	case FormatJSONPretty:
		out, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal dump records: %w", err)
		}
		_, err = w.Write(append(out, '\n'))
		return err
	case FormatYAML:
		out, err := yaml.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshal dump records as yaml: %w", err)
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown dump format %q", format)
	}
}
