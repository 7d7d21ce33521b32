package server

import (
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/mux"

	"github.com/iota-uz/sheet-importer/pkg/application"
)

// Only JSON bodies are compressed; a gzip writer would buffer SSE frames.
var compressibleTypes = []string{
	"application/json",
	"application/problem+json",
}

func NewHTTPServer(
	app application.Application,
	notFoundHandler, methodNotAllowedHandler http.Handler,
) *HTTPServer {
	return &HTTPServer{
		Controllers:             app.Controllers(),
		Middlewares:             app.Middleware(),
		NotFoundHandler:         notFoundHandler,
		MethodNotAllowedHandler: methodNotAllowedHandler,
	}
}

type HTTPServer struct {
	Controllers             []application.Controller
	Middlewares             []mux.MiddlewareFunc
	NotFoundHandler         http.Handler
	MethodNotAllowedHandler http.Handler
}

func (s *HTTPServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.Middlewares...)
	for _, controller := range s.Controllers {
		controller.Register(r)
	}

	var notFoundHandler = s.NotFoundHandler
	var notAllowedHandler = s.MethodNotAllowedHandler
	for i := len(s.Middlewares) - 1; i >= 0; i-- {
		if notFoundHandler != nil {
			notFoundHandler = s.Middlewares[i](notFoundHandler)
		}
		if notAllowedHandler != nil {
			notAllowedHandler = s.Middlewares[i](notAllowedHandler)
		}
	}
	r.NotFoundHandler = notFoundHandler
	r.MethodNotAllowedHandler = notAllowedHandler
	return r
}

func (s *HTTPServer) Handler() (http.Handler, error) {
	gzip, err := gziphandler.GzipHandlerWithOpts(gziphandler.ContentTypes(compressibleTypes))
	if err != nil {
		return nil, err
	}
	return gzip(s.Router()), nil
}

// Server builds the *http.Server so callers can drive Shutdown themselves.
func (s *HTTPServer) Server(socketAddress string) (*http.Server, error) {
	h, err := s.Handler()
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              socketAddress,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func (s *HTTPServer) Start(socketAddress string) error {
	srv, err := s.Server(socketAddress)
	if err != nil {
		return err
	}
	return srv.ListenAndServe()
}
