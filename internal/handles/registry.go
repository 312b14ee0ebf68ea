// Package handles hands out short-lived in-process URLs for asset payloads.
//
// A Handle stands in for a renderable object URL: the holder reads the bytes
// through the registry while the handle is outstanding and must release it
// exactly once when the view that displayed it goes away.
package handles

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// URLPrefix starts every handle URL.
const URLPrefix = "blob:medialib/"

// Handle is one outstanding reference to an asset payload.
type Handle struct {
	URL     string
	Kind    string
	AssetID int64
	Size    int
}

// Registry tracks outstanding handles. The zero value is not usable; call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string][]byte)}
}

// Create registers data and returns a new handle for it. The registry keeps
// its own reference to data; callers must not mutate it afterwards.
func (r *Registry) Create(kind string, assetID int64, data []byte) Handle {
	url := URLPrefix + uuid.NewString()
	r.mu.Lock()
	r.entries[url] = data
	r.mu.Unlock()
	return Handle{URL: url, Kind: kind, AssetID: assetID, Size: len(data)}
}

// Open returns the payload behind url while the handle is outstanding.
func (r *Registry) Open(url string) ([]byte, error) {
	r.mu.Lock()
	data, ok := r.entries[url]
	r.mu.Unlock()
	if !ok {
		if !strings.HasPrefix(url, URLPrefix) {
			return nil, fmt.Errorf("open handle %q: not a medialib handle", url)
		}
		return nil, fmt.Errorf("open handle %q: released or unknown", url)
	}
	return data, nil
}

// Release drops the handle. It reports whether the handle was outstanding;
// releasing twice is a no-op.
func (r *Registry) Release(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[url]; !ok {
		return false
	}
	delete(r.entries, url)
	return true
}

// Outstanding returns the number of handles not yet released.
func (r *Registry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
