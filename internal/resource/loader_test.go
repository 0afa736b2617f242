package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() *Loader {
	return NewLoaderWithClient(&http.Client{Timeout: 10 * time.Second})
}

func TestLoad_DataDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"widget","size":3}`)
	}))
	defer srv.Close()

	l := newTestLoader()
	out, err := l.Load(context.Background(), &Request{URL: srv.URL + "/widget"})
	require.NoError(t, err)

	record := out.(map[string]any)
	assert.Equal(t, "widget", record["name"])
	assert.Equal(t, float64(3), record["size"])
}

func TestLoad_KindInferredFromSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "body { margin: 0 }")
	}))
	defer srv.Close()

	l := newTestLoader()
	out, err := l.Load(context.Background(), &Request{URL: srv.URL + "/theme.css"})
	require.NoError(t, err)

	sheet, ok := out.(*Stylesheet)
	require.True(t, ok)
	assert.Equal(t, "body { margin: 0 }", sheet.Text)
}

func TestLoad_ExplicitTypeWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	l := newTestLoader()
	out, err := l.Load(context.Background(), &Request{URL: srv.URL + "/asset.css", Type: KindScript})
	require.NoError(t, err)

	_, ok := out.(*Script)
	assert.True(t, ok)
}

func TestLoad_DeduplicatesConcurrentRequests(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(started)
		}
		<-release
		fmt.Fprint(w, `{"v":1}`)
	}))
	defer srv.Close()

	l := newTestLoader()
	url := srv.URL + "/shared"

	const n = 8
	results := make([]any, n)
	var wg sync.WaitGroup
	wg.Add(n)
	go func() {
		defer wg.Done()
		out, err := l.Load(context.Background(), &Request{URL: url})
		assert.NoError(t, err)
		results[0] = out
	}()

	// The slot is marked loading before transport starts, so once the first
	// request reaches the server every later call must find the entry and
	// either wait on it or read the resolved value.
	<-started
	for i := 1; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			out, err := l.Load(context.Background(), &Request{URL: url})
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for i := 0; i < n; i++ {
		assert.Equal(t, map[string]any{"v": float64(1)}, results[i])
	}
	assert.True(t, l.Cached(url))
}

func TestLoad_IgnoreCacheBypasses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"hit":%d}`, hits.Add(1))
	}))
	defer srv.Close()

	l := newTestLoader()
	url := srv.URL + "/fresh"

	for i := 1; i <= 2; i++ {
		out, err := l.Load(context.Background(), &Request{URL: url, IgnoreCache: true})
		require.NoError(t, err)
		assert.Equal(t, float64(i), out.(map[string]any)["hit"])
	}
	assert.False(t, l.Cached(url))
}

func TestLoad_FailureReturnsLoadErrorAndLeavesNoEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := newTestLoader()
	url := srv.URL + "/broken"

	_, err := l.Load(context.Background(), &Request{URL: url})
	require.Error(t, err)
	assert.IsType(t, LoadError{}, err)
	assert.False(t, l.Cached(url))
}

func TestLoad_POSTSendsParamsAsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprintf(w, `{"echo":%q}`, body["q"])
	}))
	defer srv.Close()

	l := newTestLoader()
	out, err := l.Load(context.Background(), &Request{
		URL:    srv.URL + "/rpc",
		Method: "POST",
		Params: map[string]any{"q": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.(map[string]any)["echo"])
}

func TestLoad_JSONPUnwrapsPaddedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cb := r.URL.Query().Get("callback")
		require.NotEmpty(t, cb)
		fmt.Fprintf(w, "%s({\"cross\":\"origin\"});", cb)
	}))
	defer srv.Close()

	l := newTestLoader()
	out, err := l.Load(context.Background(), &Request{URL: srv.URL + "/feed", Method: "JSONP"})
	require.NoError(t, err)
	assert.Equal(t, "origin", out.(map[string]any)["cross"])
}

func TestLoadChain_SerialFeedsPrev(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/first":
			fmt.Fprint(w, `"token-42"`)
		case "/second":
			fmt.Fprintf(w, `{"got":%q}`, r.URL.Query().Get("auth"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := newTestLoader()
	out, err := l.LoadChain(context.Background(), []any{
		&Request{URL: srv.URL + "/first"},
		map[string]any{
			"url":    srv.URL + "/second",
			"params": map[string]any{"auth": "$prev"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "token-42", out.(map[string]any)["got"])
}

func TestLoadChain_NestedParallelGroup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"path":%q}`, r.URL.Path)
	}))
	defer srv.Close()

	l := newTestLoader()
	out, err := l.LoadChain(context.Background(), []any{
		[]any{
			&Request{URL: srv.URL + "/a"},
			&Request{URL: srv.URL + "/b"},
		},
	})
	require.NoError(t, err)

	group := out.([]any)
	require.Len(t, group, 2)
	assert.Equal(t, "/a", group[0].(map[string]any)["path"])
	assert.Equal(t, "/b", group[1].(map[string]any)["path"])
}

func TestClear_ResetsResolvedEntries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"hit":%d}`, hits.Add(1))
	}))
	defer srv.Close()

	l := newTestLoader()
	url := srv.URL + "/cached"

	_, err := l.Load(context.Background(), &Request{URL: url})
	require.NoError(t, err)
	require.True(t, l.Cached(url))

	l.Clear()
	assert.False(t, l.Cached(url))

	_, err = l.Load(context.Background(), &Request{URL: url})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}
