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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPObjectCacheRefetchesWhenNoSidecar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		w.Write([]byte("payload-v1"))
	}))
	defer srv.Close()

	c := &HTTPObjectCache{Root: t.TempDir(), Client: srv.Client(), InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	body, err := c.Get(srv.URL)
	require.NoError(t, err)
	require.Equal(t, "payload-v1", string(body))
}

func TestHTTPObjectCacheReusesPayloadOn304(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.Write([]byte("payload-v1"))
	}))
	defer srv.Close()

	c := &HTTPObjectCache{Root: t.TempDir(), Client: srv.Client(), InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	first, err := c.Get(srv.URL)
	require.NoError(t, err)

	second, err := c.Get(srv.URL)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, 2, calls)
}

func TestHTTPObjectCacheBacksOffOn429(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := &HTTPObjectCache{Root: t.TempDir(), Client: srv.Client(), InitialBackoff: time.Millisecond, MaxBackoff: 3 * time.Millisecond}

	body, err := c.Get(srv.URL)
	require.NoError(t, err)
	require.Equal(t, "payload", string(body))
	require.Equal(t, 3, attempts)
}
