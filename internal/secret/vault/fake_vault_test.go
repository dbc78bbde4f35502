package vault

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/hishamos/secrets/internal/secret"
)

const testToken = "hvs.test-root-token-0123456789"

// fakeVault serves the subset of the Vault HTTP API used by Backend:
// token lookup-self and the KV v2 data/metadata endpoints.
type fakeVault struct {
	mu        sync.Mutex
	mount     string
	data      map[string]map[string]any
	versions  map[string]int
	metadata  map[string]map[string]any
	namespace string
	requests  []string
	renewable bool
}

func newFakeVault(t *testing.T, mount string) (*fakeVault, *httptest.Server) {
	t.Helper()
	fv := &fakeVault{
		mount:    mount,
		data:     make(map[string]map[string]any),
		versions: make(map[string]int),
		metadata: make(map[string]map[string]any),
	}
	srv := httptest.NewServer(fv)
	t.Cleanup(srv.Close)
	return fv, srv
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.namespace = r.Header.Get("X-Vault-Namespace")

	if r.Header.Get("X-Vault-Token") != testToken {
		writeVault(w, http.StatusForbidden, map[string]any{"errors": []string{"permission denied"}})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch {
	case path == "auth/token/lookup-self":
		writeVault(w, http.StatusOK, map[string]any{"data": map[string]any{
			"id":        testToken,
			"renewable": f.renewable,
			"ttl":       3600,
		}})
	case path == "auth/token/renew-self":
		writeVault(w, http.StatusOK, map[string]any{"auth": map[string]any{
			"client_token":   testToken,
			"renewable":      f.renewable,
			"lease_duration": 3600,
		}})
	case strings.HasPrefix(path, f.mount+"/data/"):
		f.serveData(w, r, strings.TrimPrefix(path, f.mount+"/data/"))
	case strings.HasPrefix(path, f.mount+"/metadata"):
		p := strings.TrimPrefix(strings.TrimPrefix(path, f.mount+"/metadata"), "/")
		f.serveMetadata(w, r, p)
	default:
		writeVault(w, http.StatusNotFound, map[string]any{"errors": []string{}})
	}
}

func (f *fakeVault) serveData(w http.ResponseWriter, r *http.Request, p string) {
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		var body struct {
			Data map[string]any `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeVault(w, http.StatusBadRequest, map[string]any{"errors": []string{err.Error()}})
			return
		}
		f.data[p] = body.Data
		f.versions[p]++
		writeVault(w, http.StatusOK, map[string]any{"data": map[string]any{"version": f.versions[p]}})
	case http.MethodGet:
		d, ok := f.data[p]
		if !ok {
			writeVault(w, http.StatusNotFound, map[string]any{"errors": []string{}})
			return
		}
		writeVault(w, http.StatusOK, map[string]any{"data": map[string]any{
			"data":     d,
			"metadata": map[string]any{"version": f.versions[p]},
		}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeVault) serveMetadata(w http.ResponseWriter, r *http.Request, p string) {
	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list") == "true":
		paths := make([]string, 0, len(f.data))
		for k := range f.data {
			paths = append(paths, k)
		}
		keys := secret.ChildKeys(paths, p)
		if len(keys) == 0 {
			writeVault(w, http.StatusNotFound, map[string]any{"errors": []string{}})
			return
		}
		writeVault(w, http.StatusOK, map[string]any{"data": map[string]any{"keys": keys}})
	case r.Method == http.MethodPost || r.Method == http.MethodPut:
		var body struct {
			CustomMetadata map[string]any `json:"custom_metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.metadata[p] = body.CustomMetadata
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodDelete:
		delete(f.data, p)
		delete(f.versions, p)
		delete(f.metadata, p)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeVault) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func writeVault(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
