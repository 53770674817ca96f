package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"rex/api/internal/auth"
	"rex/api/internal/store"
	"rex/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	metrics    http.Handler
	log        *zap.SugaredLogger
}

type ServerOption func(*HTTPServer)

// WithMetricsHandler exposes h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *HTTPServer) { s.metrics = h }
}

func WithServerLogger(log *zap.SugaredLogger) ServerOption {
	return func(s *HTTPServer) {
		if log != nil {
			s.log = log
		}
	}
}

func NewHTTPServer(service *Service, corsOrigin string, opts ...ServerOption) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authedHandler serves a request whose bearer token has been verified.
type authedHandler func(w http.ResponseWriter, r *http.Request, caller Caller)

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, store.NotFound("The resource you requested could not be found."))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, &store.Error{Status: http.StatusMethodNotAllowed, Code: "METHOD_NOT_ALLOWED", Message: msgNoRoute})
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/v3/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	v3 := api.PathPrefix("/v3").Subrouter()

	v3.Handle("/collections", s.authed(auth.ScopeCollectionsRead, s.handleListCollections)).Methods(http.MethodGet)
	v3.Handle("/collections", s.authed(auth.ScopeCollectionsWrite, s.handleCreateCollection)).Methods(http.MethodPost)
	v3.Handle("/collection/{collection}", s.authed(auth.ScopeCollectionsRead, s.handleGetCollection)).Methods(http.MethodGet)
	v3.Handle("/collection/{collection}", s.authed(auth.ScopeCollectionsWrite, s.handleStoreCollection)).Methods(http.MethodPut)
	v3.Handle("/collection/{collection}", s.authed(auth.ScopeCollectionsWrite, s.handleRemoveCollection)).Methods(http.MethodDelete)

	// Idea routes exist twice: scoped to a collection, and against the
	// caller's default collection.
	for _, prefix := range []string{"/collection/{collection}", ""} {
		v3.Handle(prefix+"/ideas", s.authed(auth.ScopeIdeasRead, s.handleListIdeas)).Methods(http.MethodGet)
		v3.Handle(prefix+"/ideas", s.authed(auth.ScopeIdeasWrite, s.handleCreateIdea)).Methods(http.MethodPost)
		v3.Handle(prefix+"/idea/random", s.authed(auth.ScopeIdeasRead, s.handleRandomIdea)).Methods(http.MethodGet)
		v3.Handle(prefix+"/idea/{id}", s.authed(auth.ScopeIdeasRead, s.handleGetIdea)).Methods(http.MethodGet)
		v3.Handle(prefix+"/idea/{id}", s.authed(auth.ScopeIdeasWrite, s.handleStoreIdea)).Methods(http.MethodPut)
		v3.Handle(prefix+"/idea/{id}", s.authed(auth.ScopeIdeasWrite, s.handleRemoveIdea)).Methods(http.MethodDelete)
	}

	s.routeRBAC(v3)

	return s.withMiddleware(router)
}

// authed checks the bearer token, the caller's application role and the
// client's delegated scope before calling next.
func (s *HTTPServer) authed(scope string, next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.fail(w, r, store.Unauthorized("You must provide a valid access token to use this resource."))
			return
		}
		caller, err := s.service.Authenticate(token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !caller.Claims.HasAnyRole(auth.RoleAdministrator, auth.RoleUser) {
			s.fail(w, r, store.Forbidden(msgRoleRequired))
			return
		}
		if !caller.Claims.HasScope(scope) {
			s.fail(w, r, store.Forbidden(msgScopeRequired))
			return
		}
		next(w, r, caller)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.service.Health(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthView{OK: health.OK, StartedAt: health.StartedAt})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	check := map[string]any{"status": "ok", "backend": s.service.BackendName()}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		check["status"] = "error"
		check["error"] = store.AsError(err).Message
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": map[string]any{"store": check},
	})
}

// Collections

func (s *HTTPServer) handleListCollections(w http.ResponseWriter, r *http.Request, caller Caller) {
	collections, err := s.service.ListCollections(r.Context(), caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapViews(collections, newCollectionView))
}

func (s *HTTPServer) handleCreateCollection(w http.ResponseWriter, r *http.Request, caller Caller) {
	var body collectionView
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	collection, err := s.service.CreateCollection(r.Context(), caller, body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v3/collection/"+collection.CollectionID.String())
	writeJSON(w, http.StatusCreated, newCollectionView(collection))
}

func (s *HTTPServer) handleGetCollection(w http.ResponseWriter, r *http.Request, caller Caller) {
	id, err := pathID(r, "collection", "collection ID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	collection, err := s.service.GetCollection(r.Context(), caller, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCollectionView(collection))
}

func (s *HTTPServer) handleStoreCollection(w http.ResponseWriter, r *http.Request, caller Caller) {
	id, err := pathID(r, "collection", "collection ID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body collectionView
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	collection, err := s.service.StoreCollection(r.Context(), caller, id, body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCollectionView(collection))
}

func (s *HTTPServer) handleRemoveCollection(w http.ResponseWriter, r *http.Request, caller Caller) {
	id, err := pathID(r, "collection", "collection ID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.RemoveCollection(r.Context(), caller, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ideas

func (s *HTTPServer) handleListIdeas(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, filter, err := ideaQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ideas, err := s.service.ListIdeas(r.Context(), caller, collection, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapViews(ideas, newIdeaView))
}

func (s *HTTPServer) handleRandomIdea(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, filter, err := ideaQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	idea, err := s.service.RandomIdea(r.Context(), caller, collection, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIdeaView(idea))
}

func (s *HTTPServer) handleGetIdea(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, id, err := ideaPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	idea, err := s.service.GetIdea(r.Context(), caller, collection, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIdeaView(idea))
}

func (s *HTTPServer) handleCreateIdea(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, err := optionalPathID(r, "collection", "collection ID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body ideaView
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	idea, err := s.service.CreateIdea(r.Context(), caller, collection, body.model())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v3/collection/%s/idea/%s", idea.CollectionID, idea.ID))
	writeJSON(w, http.StatusCreated, newIdeaView(idea))
}

func (s *HTTPServer) handleStoreIdea(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, id, err := ideaPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body ideaView
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	idea, err := s.service.StoreIdea(r.Context(), caller, collection, id, body.model())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newIdeaView(idea))
}

func (s *HTTPServer) handleRemoveIdea(w http.ResponseWriter, r *http.Request, caller Caller) {
	collection, id, err := ideaPath(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.RemoveIdea(r.Context(), caller, collection, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail renders err and logs it when the failure is ours rather than the
// caller's.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	domainErr := store.AsError(err)
	if domainErr.Status >= http.StatusInternalServerError {
		s.log.Errorw("Request failed",
			"request_id", requestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", domainErr.Status,
			"error", err,
		)
	}
	writeJSON(w, domainErr.Status, newErrorResponse(domainErr))
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := util.RequestID(r.Header.Get("X-Request-ID"))
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", id)

		defer func() {
			if recovered := recover(); recovered != nil {
				s.fail(writer, r, store.Internal("We ran into a problem, this has been reported and will be looked at.", fmt.Errorf("panic: %v", recovered)))
			}
			s.log.Infow("Request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", writer.status,
				"duration_ms", time.Since(started).Milliseconds(),
			)
		}()

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(writer, r)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Location, X-Request-ID")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return store.BadRequest("You must provide a request body.")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return store.BadRequest("You must provide a request body.")
		}
		return store.BadRequest("The request body you provided is not valid JSON.")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func pathID(r *http.Request, name, what string) (store.ID, error) {
	id, err := store.ParseID(mux.Vars(r)[name])
	if err != nil {
		return store.ID{}, parseError(what)
	}
	return id, nil
}

// optionalPathID returns nil when the route has no such variable.
func optionalPathID(r *http.Request, name, what string) (*store.ID, error) {
	if _, ok := mux.Vars(r)[name]; !ok {
		return nil, nil
	}
	id, err := pathID(r, name, what)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func ideaPath(r *http.Request) (*store.ID, store.ID, error) {
	collection, err := optionalPathID(r, "collection", "collection ID")
	if err != nil {
		return nil, store.ID{}, err
	}
	id, err := pathID(r, "id", "idea ID")
	if err != nil {
		return nil, store.ID{}, err
	}
	return collection, id, nil
}

// ideaQuery reads the optional collection and the tag and complete filters.
func ideaQuery(r *http.Request) (*store.ID, store.IdeaFilter, error) {
	collection, err := optionalPathID(r, "collection", "collection ID")
	if err != nil {
		return nil, store.IdeaFilter{}, err
	}
	var filter store.IdeaFilter
	query := r.URL.Query()
	if query.Has("tag") {
		tag := query.Get("tag")
		filter.Tag = &tag
	}
	if raw := query.Get("complete"); raw != "" {
		complete, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, store.IdeaFilter{}, parseError("complete filter")
		}
		filter.Completed = &complete
	}
	return collection, filter, nil
}
