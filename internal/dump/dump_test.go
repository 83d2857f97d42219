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

package dump

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kubernator-io/kubernator/internal/k8skey"
)

func TestRecordOrderPreserved(t *testing.T) {
	var s Sink
	s.RecordCreate(map[string]any{"kind": "ConfigMap"})
	s.RecordPatch(k8skey.Key{Kind: "ConfigMap", Name: "cm1", Namespace: "default"}, []byte(`[{"op":"replace","path":"/data/a","value":"b"}]`))
	s.RecordDelete(k8skey.Key{Kind: "Pod", Name: "p1", Namespace: "default"}, k8skey.Orphan)

	records := s.Records()
	require.Len(t, records, 3)
	require.Equal(t, MethodCreate, records[0].Method)
	require.Equal(t, MethodPatch, records[1].Method)
	require.Equal(t, MethodDelete, records[2].Method)
	require.Equal(t, k8skey.Orphan, records[2].PropagationPolicy)
}

func TestWriteJSON(t *testing.T) {
	var s Sink
	s.RecordCreate(map[string]any{"kind": "ConfigMap"})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, &s))

	var decoded []Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
}

func TestWriteYAML(t *testing.T) {
	var s Sink
	s.RecordDelete(k8skey.Key{Kind: "Pod", Name: "p1"}, k8skey.Background)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, &s))
	require.Contains(t, buf.String(), "method: delete")
}

func TestWriteEmptySinkProducesEmptySequence(t *testing.T) {
	var s Sink
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, &s))
	require.Equal(t, "[]\n", buf.String())
}
