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

package merge

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractReplaceMap(t *testing.T) {
	manifest := map[string]any{
		"spec": map[string]any{
			"selector": map[string]any{
				"$patch":   "replace",
				"matchKey": "new",
			},
		},
	}

	instrs, normalized, err := Extract(manifest)
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	require.Equal(t, ReplaceMap, instrs[0].Kind)
	require.Equal(t, map[string]any{"matchKey": "new"}, instrs[0].MapValues)

	selector := normalized["spec"].(map[string]any)["selector"].(map[string]any)
	require.Equal(t, map[string]any{"matchKey": "new"}, selector)

	merged := map[string]any{"spec": map[string]any{"selector": map[string]any{"matchKey": "old", "other": "x"}}}
	require.NoError(t, Apply(zap.NewNop().Sugar(), instrs, merged))
	require.Equal(t, map[string]any{"matchKey": "new"}, merged["spec"].(map[string]any)["selector"])
}

func TestExtractDeleteMapNullsFieldOnApply(t *testing.T) {
	manifest := map[string]any{
		"spec": map[string]any{
			"template": map[string]any{"$patch": "delete"},
		},
	}

	instrs, normalized, err := Extract(manifest)
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	require.Equal(t, DeleteMap, instrs[0].Kind)
	require.Equal(t, map[string]any{}, normalized["spec"].(map[string]any)["template"])

	merged := map[string]any{"spec": map[string]any{"template": map[string]any{"replicas": 3}}}
	require.NoError(t, Apply(zap.NewNop().Sugar(), instrs, merged))
	require.Nil(t, merged["spec"].(map[string]any)["template"])
}

func TestExtractDeleteFromListOfMaps(t *testing.T) {
	manifest := map[string]any{
		"items": []any{
			map[string]any{"name": "keep"},
			map[string]any{"$patch": "delete", "name": "drop"},
		},
	}

	instrs, normalized, err := Extract(manifest)
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	require.Equal(t, DeleteListByKey, instrs[0].Kind)
	require.Equal(t, map[string]any{"name": "drop"}, instrs[0].SearchKey)
	require.Len(t, normalized["items"], 1)

	merged := map[string]any{"items": []any{
		map[string]any{"name": "keep"},
		map[string]any{"name": "drop", "extra": "field"},
	}}
	require.NoError(t, Apply(zap.NewNop().Sugar(), instrs, merged))
	require.Len(t, merged["items"], 1)
	require.Equal(t, "keep", merged["items"].([]any)[0].(map[string]any)["name"])
}

func TestExtractDeleteFromPrimitiveList(t *testing.T) {
	manifest := map[string]any{
		"spec": map[string]any{
			"ports":                          []any{int64(80)},
			"$deleteFromPrimitiveList/ports": []any{int64(8080), int64(9090)},
		},
	}

	instrs, normalized, err := Extract(manifest)
	require.NoError(t, err)
	require.Len(t, instrs, 1)
	require.Equal(t, DeletePrimitive, instrs[0].Kind)
	require.Equal(t, "ports", instrs[0].Field)
	_, hasDirectiveKey := normalized["spec"].(map[string]any)["$deleteFromPrimitiveList/ports"]
	require.False(t, hasDirectiveKey)

	merged := map[string]any{"spec": map[string]any{"ports": []any{int64(80), int64(8080)}}}
	require.NoError(t, Apply(zap.NewNop().Sugar(), instrs, merged))
	require.Equal(t, []any{int64(80)}, merged["spec"].(map[string]any)["ports"])
}

func TestExtractDeleteFromPrimitiveListMissingValueWarnsButSucceeds(t *testing.T) {
	manifest := map[string]any{
		"spec": map[string]any{
			"ports":                          []any{},
			"$deleteFromPrimitiveList/ports": []any{int64(1234)},
		},
	}

	instrs, _, err := Extract(manifest)
	require.NoError(t, err)

	merged := map[string]any{"spec": map[string]any{"ports": []any{}}}
	require.NoError(t, Apply(zap.NewNop().Sugar(), instrs, merged))
}

func TestExtractInvalidPatchValueErrors(t *testing.T) {
	manifest := map[string]any{"spec": map[string]any{"$patch": "frobnicate"}}
	_, _, err := Extract(manifest)
	require.Error(t, err)
}

func TestExtractNoDirectivesIsNoop(t *testing.T) {
	manifest := map[string]any{"spec": map[string]any{"replicas": int64(3)}}
	instrs, normalized, err := Extract(manifest)
	require.NoError(t, err)
	require.Empty(t, instrs)
	require.Equal(t, manifest, normalized)
}
