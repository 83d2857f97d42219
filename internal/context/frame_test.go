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

package context

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadsWalkUpParentChain(t *testing.T) {
	root := NewRoot()
	root.Set("region", "us-east-1")

	child := root.Child()
	v, ok := child.Get("region")
	require.True(t, ok)
	require.Equal(t, "us-east-1", v)
}

func TestWritesLandOnInnermostFrame(t *testing.T) {
	root := NewRoot()
	root.Set("region", "us-east-1")

	child := root.Child()
	child.Set("region", "eu-west-1")

	rootVal, _ := root.Get("region")
	childVal, _ := child.Get("region")
	require.Equal(t, "us-east-1", rootVal)
	require.Equal(t, "eu-west-1", childVal)
}

func TestNestedMapPromotesToChildFrame(t *testing.T) {
	root := NewRoot()
	root.Set("k8s", map[string]any{"namespace": "default"})

	v, ok := root.Get("k8s")
	require.True(t, ok)
	frame, ok := v.(*Frame)
	require.True(t, ok)

	ns, ok := frame.Get("namespace")
	require.True(t, ok)
	require.Equal(t, "default", ns)
}

func TestCowListReadThroughWithoutCopy(t *testing.T) {
	root := NewRoot()
	root.Set("includes", []any{"*.yaml"})

	child := root.Child()
	v, ok := child.Get("includes")
	require.True(t, ok)
	list := v.(*CowListView)
	require.Equal(t, []any{"*.yaml"}, list.Items())
}

func TestCowListFirstMutationClonesIntoChild(t *testing.T) {
	root := NewRoot()
	root.Set("includes", []any{"*.yaml"})

	child := root.Child()
	childList, _ := child.Get("includes")
	childList.(*CowListView).Append("*.yml")

	rootList, _ := root.Get("includes")
	require.Equal(t, []any{"*.yaml"}, rootList.(*CowListView).Items())
	require.Equal(t, []any{"*.yaml", "*.yml"}, childList.(*CowListView).Items())
}

func TestCowListObservesParentUpdatesBeforeCopyOnWrite(t *testing.T) {
	root := NewRoot()
	root.Set("includes", []any{"*.yaml"})

	child := root.Child()

	root.Set("includes", []any{"*.yaml", "*.json"})

	v, _ := child.Get("includes")
	require.Equal(t, []any{"*.yaml", "*.json"}, v.(*CowListView).Items())
}

func TestFlattenResolvesParentChainAndNestedFrames(t *testing.T) {
	root := NewRoot()
	root.Set("region", "us-east-1")
	root.Set("k8s", map[string]any{"namespace": "default"})
	root.Set("includes", []any{"*.yaml"})

	child := root.Child()
	child.Set("cluster", "staging")

	flat := child.Flatten()
	require.Equal(t, "us-east-1", flat["region"])
	require.Equal(t, "staging", flat["cluster"])
	require.Equal(t, []any{"*.yaml"}, flat["includes"])

	nested, ok := flat["k8s"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "default", nested["namespace"])
}

func TestFlattenChildOverridesParentKey(t *testing.T) {
	root := NewRoot()
	root.Set("region", "us-east-1")

	child := root.Child()
	child.Set("region", "eu-west-1")

	flat := child.Flatten()
	require.Equal(t, "eu-west-1", flat["region"])
}

func TestCowListGrandchildMutationDoesNotAffectParentOrGrandparent(t *testing.T) {
	root := NewRoot()
	root.Set("includes", []any{"*.yaml"})

	child := root.Child()
	grandchild := child.Child()

	gcList, _ := grandchild.Get("includes")
	gcList.(*CowListView).AddFirst("override.yaml")

	childList, _ := child.Get("includes")
	rootList, _ := root.Get("includes")

	require.Equal(t, []any{"override.yaml", "*.yaml"}, gcList.(*CowListView).Items())
	require.Equal(t, []any{"*.yaml"}, childList.(*CowListView).Items())
	require.Equal(t, []any{"*.yaml"}, rootList.(*CowListView).Items())
}
