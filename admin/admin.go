package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/pipecache/auth"
	"github.com/jonwraymond/pipecache/observe"
	"github.com/jonwraymond/pipecache/pipeline"
)

// DefaultKeyLimit bounds a key listing when the request sets no limit.
const DefaultKeyLimit = 1000

// Store is the store surface the admin API manages.
// *store.FilesystemStore satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	ContainsKey(ctx context.Context, key string) bool
	Keys(ctx context.Context) ([]string, error)
	Size(ctx context.Context) (int, error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Config configures a Handler.
type Config struct {
	// Stores are the managed stores by name.
	Stores map[string]Store

	// Latency feeds /stats. Nil reports no data.
	Latency *observe.LatencyTracker

	// Default: no-op
	Logger observe.Logger
}

// Handler serves the admin API.
type Handler struct {
	stores  map[string]Store
	latency *observe.LatencyTracker
	logger  observe.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		stores:  cfg.Stores,
		latency: cfg.Latency,
		logger:  observe.OrNop(cfg.Logger),
	}
}

// Routes returns the API mounted under prefix, e.g. "/admin".
func (h *Handler) Routes(prefix string) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+prefix+"/stores", h.listStores)
	mux.HandleFunc("GET "+prefix+"/stores/{name}/keys", h.listKeys)
	mux.HandleFunc("DELETE "+prefix+"/stores/{name}/keys", h.removeKey)
	mux.HandleFunc("GET "+prefix+"/stores/{name}/entry", h.showEntry)
	mux.HandleFunc("POST "+prefix+"/stores/{name}/clear", h.clearStore)
	mux.HandleFunc("GET "+prefix+"/stats", h.stats)
	return mux
}

// StoreInfo describes one store.
type StoreInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) listStores(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.stores))
	for name := range h.stores {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StoreInfo, 0, len(names))
	for _, name := range names {
		info := StoreInfo{Name: name}
		n, err := h.stores[name].Size(r.Context())
		if err != nil {
			info.Error = err.Error()
		}
		info.Entries = n
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// KeyList is the body of a key listing.
type KeyList struct {
	Store     string   `json:"store"`
	Keys      []string `json:"keys"`
	Truncated bool     `json:"truncated"`
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	s, name, ok := h.store(w, r)
	if !ok {
		return
	}
	limit := DefaultKeyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	keys, err := s.Keys(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "listing keys failed", observe.F("store", name), observe.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		keys = slices.DeleteFunc(keys, func(k string) bool { return !strings.HasPrefix(k, prefix) })
	}

	out := KeyList{Store: name, Keys: keys}
	if len(keys) > limit {
		out.Keys, out.Truncated = keys[:limit], true
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) removeKey(w http.ResponseWriter, r *http.Request) {
	s, name, ok := h.store(w, r)
	if !ok {
		return
	}
	key, ok := requireKey(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if !s.ContainsKey(ctx, key) {
		writeError(w, http.StatusNotFound, "no such key")
		return
	}
	if err := s.Remove(ctx, key); err != nil {
		h.logger.Error(ctx, "evicting entry failed", observe.F("store", name), observe.F("key", key), observe.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info(ctx, "entry evicted",
		observe.F("store", name), observe.F("key", key), observe.F("principal", auth.PrincipalFromContext(ctx)))
	w.WriteHeader(http.StatusNoContent)
}

// EntryInfo describes a stored pipeline entry without its payload.
type EntryInfo struct {
	StoreKey     string          `json:"store_key"`
	CacheKey     string          `json:"cache_key"`
	Created      time.Time       `json:"created"`
	MimeType     string          `json:"mime_type,omitempty"`
	LastModified time.Time       `json:"last_modified,omitzero"`
	Bytes        int             `json:"bytes"`
	Validity     json.RawMessage `json:"validity"`
}

func (h *Handler) showEntry(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.store(w, r)
	if !ok {
		return
	}
	key, ok := requireKey(w, r)
	if !ok {
		return
	}
	data, found := s.Get(r.Context(), key)
	if !found {
		writeError(w, http.StatusNotFound, "no such key")
		return
	}
	info, err := Describe(key, data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Describe decodes a stored pipeline entry into its metadata.
func Describe(storeKey string, data []byte) (EntryInfo, error) {
	e, err := pipeline.UnmarshalEntry(data)
	if err != nil {
		return EntryInfo{}, err
	}
	return EntryInfo{
		StoreKey:     storeKey,
		CacheKey:     e.Key,
		Created:      e.Created,
		MimeType:     e.MimeType,
		LastModified: e.LastModified,
		Bytes:        len(e.Payload),
		Validity:     e.Validity,
	}, nil
}

func (h *Handler) clearStore(w http.ResponseWriter, r *http.Request) {
	s, name, ok := h.store(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := s.Clear(ctx); err != nil {
		h.logger.Error(ctx, "clearing store failed", observe.F("store", name), observe.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info(ctx, "store cleared by admin",
		observe.F("store", name), observe.F("principal", auth.PrincipalFromContext(ctx)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stats(w http.ResponseWriter, _ *http.Request) {
	stats := []observe.LatencyStats{}
	if h.latency != nil {
		stats = h.latency.All()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (Store, string, bool) {
	name := r.PathValue("name")
	s, ok := h.stores[name]
	if !ok {
		writeError(w, http.StatusNotFound, "no such store")
		return nil, name, false
	}
	return s, name, true
}

func requireKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return "", false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
