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

package cache

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/kubernator-io/kubernator/internal/cachedir"
)

// GitCache clones and refreshes a shallow, single-ref checkout per
// remote URL, grounded on the git.Clone/osfs.New usage in
// cmd/crank/beta/xpkg/init.go of the example pack, generalized from a
// one-shot template clone into spec.md §4.8's cache-hit refresh /
// cache-miss clone pair.
type GitCache struct {
	Root string
}

// NewGitCache returns a cache rooted at the default application cache
// directory.
func NewGitCache() (*GitCache, error) {
	root, err := cachedir.Dir()
	if err != nil {
		return nil, err
	}
	return &GitCache{Root: root}, nil
}

// cacheKey strips credentials, query, and fragment from a repository
// URL, per spec.md §4.8's "Repositories are compared by (host, path,
// query)" rule applied to key derivation.
func cacheKey(repoURL string) (key, ref string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("parse git URL %q: %w", repoURL, err)
	}

	ref = u.Query().Get("ref")

	stripped := *u
	stripped.User = nil
	stripped.RawQuery = ""
	stripped.Fragment = ""

	return stripped.String(), ref, nil
}

// Checkout returns a local working directory containing repoURL's tree
// at the requested ref (or the remote's default branch, if repoURL
// carries no `?ref=` query parameter), cloning on first use and
// fetching/resetting on subsequent calls.
func (c *GitCache) Checkout(repoURL string) (path string, resolvedRef string, err error) {
	key, ref, err := cacheKey(repoURL)
	if err != nil {
		return "", "", err
	}

	dir := cachedir.GitRepoPath(c.Root, key)
	plainURL := stripQueryAndFragment(repoURL)

	if _, statErr := os.Stat(dir); statErr == nil {
		resolved, err := c.refresh(dir, ref)
		if err != nil {
			return "", "", err
		}
		return dir, resolved, nil
	}

	resolved, err := c.clone(dir, plainURL, ref)
	if err != nil {
		return "", "", err
	}
	return dir, resolved, nil
}

// clone performs the cache-miss path: a shallow clone at depth 1 of the
// requested ref (or the default branch).
func (c *GitCache) clone(dir, plainURL, ref string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create git cache dir %s: %w", dir, err)
	}

	opts := &git.CloneOptions{
		URL:   plainURL,
		Depth: 1,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		opts.SingleBranch = true
	}

	repo, err := git.PlainClone(dir, false, opts)
	if err != nil {
		return "", fmt.Errorf("clone %s: %w", plainURL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD after cloning %s: %w", plainURL, err)
	}
	return head.Name().Short(), nil
}

// refresh performs the cache-hit path: a fetch with prune, all tags and
// force, a forced checkout of the fetched origin/<ref> commit, a clean,
// and a hard reset to that commit. There is no separate pull step; the
// worktree ends detached at the fetched remote commit.
func (c *GitCache) refresh(dir, ref string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open cached repository %s: %w", dir, err)
	}

	if err := repo.Fetch(&git.FetchOptions{
		RemoteName: "origin",
		Tags:       git.AllTags,
		Force:      true,
		Prune:      true,
	}); err != nil && err != git.NoErrAlreadyUpToDate {
		return "", fmt.Errorf("fetch %s: %w", dir, err)
	}

	resolvedRef := ref
	if resolvedRef == "" {
		resolvedRef, err = defaultBranch(repo)
		if err != nil {
			return "", err
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree %s: %w", dir, err)
	}

	branchRef := plumbing.NewRemoteReferenceName("origin", resolvedRef)
	remoteRef, err := repo.Reference(branchRef, true)
	if err != nil {
		return "", fmt.Errorf("resolve %s for %s: %w", branchRef, dir, err)
	}

	if err := wt.Checkout(&git.CheckoutOptions{
		Hash:  remoteRef.Hash(),
		Force: true,
	}); err != nil {
		return "", fmt.Errorf("checkout %s in %s: %w", resolvedRef, dir, err)
	}

	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return "", fmt.Errorf("clean %s: %w", dir, err)
	}

	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: remoteRef.Hash()}); err != nil {
		return "", fmt.Errorf("reset --hard %s in %s: %w", resolvedRef, dir, err)
	}

	return resolvedRef, nil
}

// defaultBranch resolves the remote's default branch, the equivalent of
// `git symbolic-ref refs/remotes/origin/HEAD --short` stripped of the
// `origin/` prefix, per spec.md §4.8.
func defaultBranch(repo *git.Repository) (string, error) {
	ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), true)
	if err != nil {
		remotes, rerr := repo.Remote("origin")
		if rerr != nil {
			return "", fmt.Errorf("resolve default branch: %w", err)
		}
		head, herr := headRefFromRemote(remotes)
		if herr != nil {
			return "", fmt.Errorf("resolve default branch: %w", herr)
		}
		return head, nil
	}
	return strings.TrimPrefix(ref.Target().Short(), "origin/"), nil
}

func headRefFromRemote(remote *git.Remote) (string, error) {
	refs, err := remote.List(&git.ListOptions{})
	if err != nil {
		return "", err
	}
	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD {
			return strings.TrimPrefix(ref.Target().Short(), "origin/"), nil
		}
	}
	return "", fmt.Errorf("remote %s does not advertise HEAD", remote.Config().Name)
}

func stripQueryAndFragment(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil {
		return repoURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
