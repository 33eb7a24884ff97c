package httpapi

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/hamed0406/servicepoller/internal/domain"
	apimw "github.com/hamed0406/servicepoller/internal/httpapi/middleware"
	"github.com/hamed0406/servicepoller/internal/metrics"
	"github.com/hamed0406/servicepoller/internal/notify"
	"github.com/hamed0406/servicepoller/internal/repo"
)

//go:embed static
var staticFiles embed.FS

// Options tune the middleware in front of the /service routes.
type Options struct {
	AdminKeys      []string // guard POST and DELETE; empty disables
	AllowedOrigins []string // CORS; empty allows all
	RateLimitRPM   int      // per client IP; 0 disables
	RateLimitBurst int
}

type Server struct {
	Logger  *zap.Logger
	Store   repo.Store
	Metrics *metrics.Metrics // optional, serves /metrics
	Hub     *notify.Hub      // optional, serves /ws
	Options Options
}

func NewServer(l *zap.Logger, store repo.Store, m *metrics.Metrics, hub *notify.Hub, opts Options) *Server {
	return &Server{Logger: l, Store: store, Metrics: m, Hub: hub, Options: opts}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(apimw.RequestLogger(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(s.cors())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}
	if s.Hub != nil {
		r.Method(http.MethodGet, "/ws", s.Hub)
	}

	admin := apimw.RequireAdmin(s.Options.AdminKeys)
	r.Route("/service", func(r chi.Router) {
		r.Use(apimw.RateLimit(s.Options.RateLimitRPM, s.Options.RateLimitBurst))
		r.Get("/", s.handleListServices)
		r.With(admin).Post("/", s.handleAddService)
		r.With(admin).Delete("/{id}", s.handleDeleteService)
	})

	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// the embed pattern guarantees the directory
		panic(err)
	}
	r.Handle("/*", http.FileServer(http.FS(sub)))
	return r
}

func (s *Server) cors() func(http.Handler) http.Handler {
	if len(s.Options.AllowedOrigins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: s.Options.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-API-Key"},
		MaxAge:         300,
	})
}

type addPayload struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (p addPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.URL, validation.Required, validation.By(func(v interface{}) error {
			if !isValidHTTPURL(v.(string)) {
				return validation.NewError("validation_invalid_url", "must be an absolute http or https URL")
			}
			return nil
		})),
		validation.Field(&p.Name, validation.Length(0, 200)),
	)
}

// maxBodyBytes caps the add-service request body.
const maxBodyBytes = 64 << 10

func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var p addPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e := domain.NewEndpoint(p.URL, p.Name)
	if err := s.Store.Create(r.Context(), &e); err != nil {
		s.Logger.Error("service_add_error", zap.String("url", p.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	s.Logger.Info("service_added",
		zap.String("id", string(e.ID)),
		zap.String("url", e.URL),
		zap.String("name", e.Name),
	)
	writeJSON(w, http.StatusCreated, e.ID)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	eps, err := s.Store.ListAll(r.Context())
	if err != nil {
		s.Logger.Error("service_list_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if eps == nil {
		eps = []domain.Endpoint{}
	}
	writeJSON(w, http.StatusOK, eps)
}

// handleDeleteService always answers 204: deleting an unknown id is a no-op
// and a store failure is only logged.
func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	id := domain.EndpointID(chi.URLParam(r, "id"))
	if err := s.Store.Delete(r.Context(), id); err != nil {
		s.Logger.Error("service_delete_error", zap.String("id", string(id)), zap.Error(err))
	} else {
		s.Logger.Info("service_deleted", zap.String("id", string(id)))
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// isValidHTTPURL accepts absolute http/https URLs with a host.
func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || u.Hostname() == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
