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

// Package cache implements the remote cache from spec.md §4.8: a
// content-addressed HTTP object cache honoring ETag/Last-Modified, and a
// Git repository cache built on go-git. There is no example in the pack
// that issues conditional HTTP requests with ETag/If-None-Match, so
// HTTPObjectCache is built directly on net/http and encoding/json — the
// stdlib is the natural fit here and the format is fixed by spec.md §6's
// persisted-state layout, not by any library's conventions.
package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/kubernator-io/kubernator/internal/cachedir"
)

// sidecar is the JSON metadata file stored alongside a cached HTTP
// payload, per spec.md §6: `{"if-none-match": "...", "if-modified-since": "..."}`.
type sidecar struct {
	IfNoneMatch     string `json:"if-none-match,omitempty"`
	IfModifiedSince string `json:"if-modified-since,omitempty"`
}

// HTTPObjectCache fetches and caches a URL's payload under the
// application cache directory, revalidating with ETag/Last-Modified on
// every call and backing off on HTTP 429.
type HTTPObjectCache struct {
	Root   string
	Client *http.Client

	// MaxBackoff bounds the exponential 429 backoff, per spec.md §5's
	// "429 ... ×2 backoff capped at 2.5 s".
	MaxBackoff time.Duration
	// InitialBackoff is the first retry delay, per spec.md §5's
	// "initial for 429" note.
	InitialBackoff time.Duration
}

// NewHTTPObjectCache returns a cache rooted at the default application
// cache directory.
func NewHTTPObjectCache() (*HTTPObjectCache, error) {
	root, err := cachedir.Dir()
	if err != nil {
		return nil, err
	}
	return &HTTPObjectCache{
		Root:           root,
		Client:         http.DefaultClient,
		MaxBackoff:     2500 * time.Millisecond,
		InitialBackoff: 200 * time.Millisecond,
	}, nil
}

// Get returns the payload for url, reusing the cached copy on a 304 and
// refreshing both payload and sidecar otherwise.
func (c *HTTPObjectCache) Get(url string) ([]byte, error) {
	payloadPath, sidecarPath := cachedir.HTTPObjectPath(c.Root, url)

	meta := readSidecar(sidecarPath)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	if meta.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", meta.IfNoneMatch)
	}
	if meta.IfModifiedSince != "" {
		req.Header.Set("If-Modified-Since", meta.IfModifiedSince)
	}

	resp, err := c.doWithBackoff(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return os.ReadFile(payloadPath)
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body for %s: %w", url, err)
		}

		if err := cachedir.EnsureDir(payloadPath); err != nil {
			return nil, err
		}
		if err := os.WriteFile(payloadPath, body, 0o644); err != nil {
			return nil, fmt.Errorf("write cache payload for %s: %w", url, err)
		}

		newMeta := sidecar{
			IfNoneMatch:     resp.Header.Get("ETag"),
			IfModifiedSince: resp.Header.Get("Last-Modified"),
		}
		writeSidecar(sidecarPath, newMeta)

		return body, nil
	default:
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
}

// doWithBackoff issues req, retrying with exponential backoff while the
// server answers 429, per spec.md §5.
func (c *HTTPObjectCache) doWithBackoff(req *http.Request) (*http.Response, error) {
	delay := c.InitialBackoff
	for {
		resp, err := c.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", req.URL, err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		time.Sleep(delay)
		delay = time.Duration(math.Min(float64(delay*2), float64(c.MaxBackoff)))
	}
}

func readSidecar(path string) sidecar {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}
	}
	var meta sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return sidecar{}
	}
	return meta
}

func writeSidecar(path string, meta sidecar) {
	if err := cachedir.EnsureDir(path); err != nil {
		return
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, raw, 0o644)
}
