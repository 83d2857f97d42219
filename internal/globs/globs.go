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

// Package globs implements the ordered glob set described in spec.md §3:
// an insertion-ordered set of shell-glob patterns, with add-to-front and
// extend-to-front operations and a freeze flag plugins use to protect
// their default include/exclude sets from further mutation once the walk
// has started.
package globs

import (
	"fmt"
	"path/filepath"
)

// Globs is an ordered, optionally frozen set of glob patterns.
type Globs struct {
	patterns []string
	frozen   bool
}

// New creates a Globs seeded with the given patterns, in order.
func New(patterns ...string) *Globs {
	return &Globs{patterns: append([]string{}, patterns...)}
}

// Patterns returns the patterns in insertion order.
func (g *Globs) Patterns() []string {
	out := make([]string, len(g.patterns))
	copy(out, g.patterns)
	return out
}

// Freeze marks the set immutable; subsequent mutating calls return an
// error instead of panicking, so a misbehaving plugin degrades to a
// reported failure rather than corrupting a sibling's configuration.
func (g *Globs) Freeze() {
	g.frozen = true
}

// Frozen reports whether the set has been frozen.
func (g *Globs) Frozen() bool {
	return g.frozen
}

// Add appends pattern to the end of the set.
func (g *Globs) Add(pattern string) error {
	if g.frozen {
		return fmt.Errorf("glob set is frozen")
	}
	g.patterns = append(g.patterns, pattern)
	return nil
}

// AddFirst inserts pattern at the head of the set.
func (g *Globs) AddFirst(pattern string) error {
	if g.frozen {
		return fmt.Errorf("glob set is frozen")
	}
	g.patterns = append([]string{pattern}, g.patterns...)
	return nil
}

// Extend appends patterns, in order, to the end of the set.
func (g *Globs) Extend(patterns []string) error {
	if g.frozen {
		return fmt.Errorf("glob set is frozen")
	}
	g.patterns = append(g.patterns, patterns...)
	return nil
}

// ExtendFirst inserts patterns, preserving their order, at the head of
// the set.
func (g *Globs) ExtendFirst(patterns []string) error {
	if g.frozen {
		return fmt.Errorf("glob set is frozen")
	}
	g.patterns = append(append([]string{}, patterns...), g.patterns...)
	return nil
}

// MatchAny reports whether name matches any pattern in the set, using
// shell-glob semantics (filepath.Match).
func (g *Globs) MatchAny(name string) bool {
	for _, pattern := range g.patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
