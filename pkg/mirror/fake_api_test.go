package mirror

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"thingmirror/pkg/logger"
	"thingmirror/pkg/thingiverse"
)

// fakeThing is a thing served by fakeAPI together with its assets
type fakeThing struct {
	name   string
	images map[string]string // image name -> content
	files  map[string]string // file name -> content
}

// fakeAPI simulates the Thingiverse endpoints the mirror uses
type fakeAPI struct {
	server *httptest.Server

	mu             sync.Mutex
	things         map[uint64]fakeThing
	errorResponses map[string]int // path -> status code
	failOnce       map[string]int // path -> status code served on the first hit only
	hits           map[string]int

	requestCount atomic.Int32
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		things:         make(map[uint64]fakeThing),
		errorResponses: make(map[string]int),
		failOnce:       make(map[string]int),
		hits:           make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/things/", f.handleThings)
	mux.HandleFunc("/assets/", f.handleAsset)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) client() *thingiverse.Client {
	return thingiverse.NewClient(thingiverse.ClientConfig{
		BaseURL: f.server.URL,
		Token:   "test-token",
	}, nil, logger.NewNopLogger())
}

func (f *fakeAPI) addThing(id uint64, thing fakeThing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.things[id] = thing
}

func (f *fakeAPI) setError(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorResponses[path] = status
}

func (f *fakeAPI) setFailOnce(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnce[path] = status
}

func (f *fakeAPI) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// intercept serves configured errors and reports whether it did
func (f *fakeAPI) intercept(w http.ResponseWriter, r *http.Request) bool {
	f.requestCount.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[r.URL.Path]++

	if status, ok := f.failOnce[r.URL.Path]; ok {
		delete(f.failOnce, r.URL.Path)
		w.WriteHeader(status)
		return true
	}
	if status, ok := f.errorResponses[r.URL.Path]; ok {
		w.WriteHeader(status)
		return true
	}
	return false
}

// handleThings serves /things/{id}, /things/{id}/images and /things/{id}/files
func (f *fakeAPI) handleThings(w http.ResponseWriter, r *http.Request) {
	if f.intercept(w, r) {
		return
	}
	if r.Header.Get("Authorization") != "Bearer test-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	thing, ok := f.things[id]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	base := f.server.URL
	var body interface{}
	switch {
	case len(parts) == 2:
		body = map[string]interface{}{
			"id":           id,
			"name":         thing.name,
			"description":  "description of " + thing.name,
			"instructions": "",
			"details":      "",
			"license":      "CC-BY",
			"tags":         []map[string]string{{"name": "test", "tag": "test"}},
			"creator":      map[string]interface{}{"id": 1, "name": "maker", "first_name": "A", "last_name": "B"},
			"images_url":   fmt.Sprintf("%s/things/%d/images", base, id),
			"files_url":    fmt.Sprintf("%s/things/%d/files", base, id),
		}
	case parts[2] == "images":
		var images []map[string]interface{}
		n := 0
		for name := range thing.images {
			n++
			images = append(images, map[string]interface{}{
				"id":   n,
				"name": name,
				"sizes": []map[string]string{
					{"type": "thumb", "size": "small", "url": base + "/assets/thumb/" + name},
					{"type": "display", "size": "large", "url": fmt.Sprintf("%s/assets/%d/images/%s", base, id, name)},
				},
			})
		}
		body = images
	case parts[2] == "files":
		var files []map[string]interface{}
		n := 0
		for name, content := range thing.files {
			n++
			files = append(files, map[string]interface{}{
				"id":         n,
				"name":       name,
				"size":       len(content),
				"public_url": fmt.Sprintf("%s/assets/%d/files/%s", base, id, name),
				"direct_url": nil,
			})
		}
		body = files
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// handleAsset serves /assets/{id}/{images|files}/{name}
func (f *fakeAPI) handleAsset(w http.ResponseWriter, r *http.Request) {
	if f.intercept(w, r) {
		return
	}

	parts := strings.SplitN(strings.Trim(r.URL.Path, "/"), "/", 4)
	if len(parts) != 4 {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	thing, ok := f.things[id]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	var content string
	switch parts[2] {
	case "images":
		content, ok = thing.images[parts[3]]
	case "files":
		content, ok = thing.files[parts[3]]
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte(content))
}
