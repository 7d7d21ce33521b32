package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/sheet-importer/pkg/application"
)

type routeController struct {
	path string
	h    http.HandlerFunc
}

func (c routeController) Key() string             { return c.path }
func (c routeController) Register(r *mux.Router) { r.HandleFunc(c.path, c.h) }

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	big := strings.Repeat(`{"ok":true}`, 200)
	s := &HTTPServer{
		Controllers: []application.Controller{
			routeController{path: "/json", h: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, big)
			}},
			routeController{path: "/events", h: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, strings.Repeat("data: {}\n\n", 200))
			}},
		},
		NotFoundHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
	}
	h, err := s.Handler()
	require.NoError(t, err)
	return h
}

func TestHandler_CompressesJSON(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/json", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(body), `{"ok":true}`))
}

func TestHandler_LeavesEventStreamUncompressed(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Content-Encoding"))
	require.True(t, strings.HasPrefix(rec.Body.String(), "data: {}"))
}

func TestRouter_UsesNotFoundHandler(t *testing.T) {
	h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
