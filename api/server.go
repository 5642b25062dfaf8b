// Package api exposes the analysis pipeline over HTTP. It is a thin
// surface: every route validates, delegates to the analyzer, and maps the
// error taxonomy onto status codes.
package api

import (
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"convdep/adapters/excel"
	"convdep/domain/conversation"
	"convdep/internal"
	"convdep/internal/analyzer"
	apperrors "convdep/internal/errors"
	"convdep/ports"
)

// StoreFactory builds the anchor store for one conversation. It lets the
// server run against in-memory stores or a database without knowing which.
type StoreFactory func(conversationID string) (ports.AnchorStore, error)

// exporter renders an analysis result as a workbook.
type exporter interface {
	Write(w io.Writer, current conversation.Utterance, res *analyzer.Result) error
}

// App represents the API application
type App struct {
	router   *chi.Mux
	analyzer *analyzer.Analyzer
	defaults conversation.AnalyzerOptions
	log      *internal.Logger

	newStore StoreFactory
	exporter exporter
	mu       sync.Mutex
	stores   map[string]ports.AnchorStore
}

// NewApp creates the API application.
func NewApp(a *analyzer.Analyzer, defaults conversation.AnalyzerOptions, newStore StoreFactory, log *internal.Logger) *App {
	if log == nil {
		log = internal.DefaultLogger
	}
	app := &App{
		router:   chi.NewRouter(),
		analyzer: a,
		defaults: defaults,
		log:      log.Named("api"),
		newStore: newStore,
		exporter: excel.NewExporter(),
		stores:   make(map[string]ports.AnchorStore),
	}
	app.setupMiddleware()
	app.setupRoutes()
	return app
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(requestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/health", a.handleHealth)

	a.router.Route("/api", func(r chi.Router) {
		r.Post("/analyze", a.handleAnalyze)
		r.Post("/analyze/anchors", a.handleAnalyzeWithAnchors)
		r.Get("/anchors/{conversationID}", a.handleListAnchors)
		r.Post("/report", a.handleReport)
		r.Post("/export", a.handleExport)
	})
}

// Router returns the HTTP handler for mounting or serving.
func (a *App) Router() http.Handler {
	return a.router
}

// Start begins serving on the given port.
func (a *App) Start(port string) error {
	a.log.Info("listening on :%s", port)
	return http.ListenAndServe(":"+port, a.router)
}

// store returns the anchor store for a conversation, creating it on first
// use.
func (a *App) store(conversationID string) (ports.AnchorStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.stores[conversationID]; ok {
		return s, nil
	}
	s, err := a.newStore(conversationID)
	if err != nil {
		return nil, err
	}
	a.stores[conversationID] = s
	return s, nil
}

// requestID tags every request with a correlation id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.CodeInvalidInput, apperrors.CodeConfigInvalid:
		return http.StatusBadRequest
	case apperrors.CodeAdapterUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.CodeAdapterFailure, apperrors.CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
