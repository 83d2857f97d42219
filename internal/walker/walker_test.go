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

package walker

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/kubernator-io/kubernator/internal/context"
	"github.com/kubernator-io/kubernator/internal/plugin"
)

// recordingPlugin logs every hook invocation as "<name>:<hook>[:<arg>]",
// appending to a shared, test-owned log slice.
type recordingPlugin struct {
	plugin.Base
	log *[]string
}

func (p *recordingPlugin) record(event string) {
	*p.log = append(*p.log, p.PluginName+":"+event)
}

func (p *recordingPlugin) HandleInit(*context.Frame) error    { p.record("init"); return nil }
func (p *recordingPlugin) HandleStart(*context.Frame) error   { p.record("start"); return nil }
func (p *recordingPlugin) HandleApply(*context.Frame) error   { p.record("apply"); return nil }
func (p *recordingPlugin) HandleVerify(*context.Frame) error  { p.record("verify"); return nil }
func (p *recordingPlugin) HandleSummary(*context.Frame) error { p.record("summary"); return nil }
func (p *recordingPlugin) HandleShutdown(*context.Frame) error {
	p.record("shutdown")
	return nil
}
func (p *recordingPlugin) HandleBeforeDir(_ *context.Frame, cwd string) error {
	p.record("before_dir:" + cwd)
	return nil
}
func (p *recordingPlugin) HandleAfterDir(_ *context.Frame, cwd string) error {
	p.record("after_dir:" + cwd)
	return nil
}
func (p *recordingPlugin) HandleBeforeScript(_ *context.Frame, cwd string) error {
	p.record("before_script:" + cwd)
	return nil
}
func (p *recordingPlugin) HandleAfterScript(_ *context.Frame, cwd string) error {
	p.record("after_script:" + cwd)
	return nil
}

func newRecordingPlugin(name string, log *[]string) *recordingPlugin {
	return &recordingPlugin{Base: plugin.Base{PluginName: name}, log: log}
}

func noopInterpreter(w *Walker, ctx *context.Frame, cwd, scriptPath string) error { return nil }

func TestLexicographicSubdirectoryTraversal(t *testing.T) {
	// fstest.MapFS infers a directory for any path that is a strict
	// prefix of another entry, so only leaf marker files are needed here.
	fsys := fstest.MapFS{
		"root/marker":       &fstest.MapFile{Data: []byte("x")},
		"root/b/marker":     &fstest.MapFile{Data: []byte("x")},
		"root/a/marker":     &fstest.MapFile{Data: []byte("x")},
		"root/a/two/marker": &fstest.MapFile{Data: []byte("x")},
		"root/a/one/marker": &fstest.MapFile{Data: []byte("x")},
	}

	var log []string
	p := newRecordingPlugin("p", &log)

	w := New(fsys, nil, context.NewRoot(), "root", p)
	err := w.Run(noopInterpreter)
	require.NoError(t, err)

	var visited []string
	for _, entry := range log {
		if len(entry) > len("p:before_dir:") && entry[:len("p:before_dir:")] == "p:before_dir:" {
			visited = append(visited, entry[len("p:before_dir:"):])
		}
	}
	require.Equal(t, []string{"root", "root/a", "root/a/one", "root/a/two", "root/b"}, visited)
}

func TestAfterHooksFireInReverseRegistrationOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"root/child/marker": &fstest.MapFile{Data: []byte("x")},
	}

	var log []string
	p1 := newRecordingPlugin("p1", &log)
	p2 := newRecordingPlugin("p2", &log)

	w := New(fsys, nil, context.NewRoot(), "root", p1, p2)
	err := w.Run(noopInterpreter)
	require.NoError(t, err)

	require.Equal(t, "p1:init", log[0])
	require.Equal(t, "p2:init", log[1])
	require.Equal(t, "p1:start", log[2])
	require.Equal(t, "p2:start", log[3])

	// after_dir for the root directory must see p2 before p1.
	idxP2After := indexOf(log, "p2:after_dir:root")
	idxP1After := indexOf(log, "p1:after_dir:root")
	require.Greater(t, idxP1After, idxP2After)

	// terminal phases run in reverse registration order too.
	idxP2Apply := indexOf(log, "p2:apply")
	idxP1Apply := indexOf(log, "p1:apply")
	require.Greater(t, idxP1Apply, idxP2Apply)
}

func TestMidWalkRegistrationReplaysHooks(t *testing.T) {
	script := `
register_plugins:
  - name: late
`
	fsys := fstest.MapFS{
		"root/kubernator.yaml": &fstest.MapFile{Data: []byte(script)},
	}

	var log []string
	late := newRecordingPlugin("late", &log)

	registry := func(name string) (plugin.Factory, bool) {
		if name != "late" {
			return nil, false
		}
		return func(options map[string]any) (plugin.Plugin, error) {
			return late, nil
		}, true
	}

	w := New(fsys, nil, context.NewRoot(), "root")
	err := w.Run(DefaultInterpreter(registry, nil))
	require.NoError(t, err)

	require.Contains(t, log, "late:init")
	require.Contains(t, log, "late:start")
	require.Contains(t, log, "late:before_dir:root")
	require.Contains(t, log, "late:before_script:root")
}

func TestWalkLocalEnqueuesAdditionalDirectory(t *testing.T) {
	script := `
walk_local:
  - ../extra
`
	fsys := fstest.MapFS{
		"root/kubernator.yaml": &fstest.MapFile{Data: []byte(script)},
		"extra/marker":         &fstest.MapFile{Data: []byte("x")},
	}

	var log []string
	p := newRecordingPlugin("p", &log)

	w := New(fsys, nil, context.NewRoot(), "root", p)
	err := w.Run(DefaultInterpreter(func(string) (plugin.Factory, bool) { return nil, false }, nil))
	require.NoError(t, err)

	require.Contains(t, log, "p:before_dir:extra")
}

func TestIncludeExcludeFiltersSubdirectories(t *testing.T) {
	script := `
excludes:
  - b
`
	fsys := fstest.MapFS{
		"root/kubernator.yaml": &fstest.MapFile{Data: []byte(script)},
		"root/a/marker":        &fstest.MapFile{Data: []byte("x")},
		"root/b/marker":        &fstest.MapFile{Data: []byte("x")},
	}

	var log []string
	p := newRecordingPlugin("p", &log)

	w := New(fsys, nil, context.NewRoot(), "root", p)
	err := w.Run(DefaultInterpreter(func(string) (plugin.Factory, bool) { return nil, false }, nil))
	require.NoError(t, err)

	require.Contains(t, log, "p:before_dir:root/a")
	require.NotContains(t, log, "p:before_dir:root/b")
}

func indexOf(haystack []string, needle string) int {
	for i, s := range haystack {
		if s == needle {
			return i
		}
	}
	return -1
}
