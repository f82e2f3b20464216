// Package api exposes the service over JSON/HTTP.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/auth"
	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/middleware"
	"github.com/rpattn/pawlog/internal/pets"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/records"
	"github.com/rpattn/pawlog/internal/repository"
	"github.com/rpattn/pawlog/internal/timeline"
)

// AuthService is the account surface used by the handlers.
type AuthService interface {
	SignUp(ctx context.Context, req auth.SignUpRequest) (auth.Token, error)
	SignIn(ctx context.Context, email, password string) (auth.Token, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type PetService interface {
	Create(ctx context.Context, principal uuid.UUID, input domain.PetInput) (domain.Pet, error)
	Get(ctx context.Context, principal, petID uuid.UUID) (domain.Pet, error)
	List(ctx context.Context, principal uuid.UUID) ([]domain.Pet, error)
	Update(ctx context.Context, principal, petID uuid.UUID, input domain.PetInput) (domain.Pet, error)
	Delete(ctx context.Context, principal, petID uuid.UUID) error
	Summaries(ctx context.Context, pets []domain.Pet) ([]pets.Summary, error)
}

type RecordService interface {
	Create(ctx context.Context, principal, petID uuid.UUID, input domain.HealthRecordInput) (domain.HealthRecord, error)
	Get(ctx context.Context, principal, petID, recordID uuid.UUID) (domain.HealthRecord, error)
	List(ctx context.Context, principal, petID uuid.UUID) ([]domain.HealthRecord, error)
	Update(ctx context.Context, principal, petID, recordID uuid.UUID, input domain.HealthRecordInput) (domain.HealthRecord, error)
	Delete(ctx context.Context, principal, petID, recordID uuid.UUID) error
	Timeline(ctx context.Context, principal, petID uuid.UUID, active timeline.Set) (records.View, error)
	Toggle(ctx context.Context, principal, petID uuid.UUID, active timeline.Set, category timeline.Category) (records.View, error)
	Import(ctx context.Context, principal uuid.UUID, req records.ImportRequest) (records.ImportSummary, error)
	Export(ctx context.Context, principal, petID uuid.UUID, active timeline.Set, w io.Writer) (string, error)
}

// QuotaReporter exposes the quota state of a principal.
type QuotaReporter interface {
	Usage(ctx context.Context, principal uuid.UUID) (quota.Usage, error)
	Stats(ctx context.Context) (quota.StatsSnapshot, error)
	PrincipalStats(ctx context.Context, principal uuid.UUID) (quota.StatsSnapshot, error)
	Bypassed() bool
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the handlers to the services.
type Deps struct {
	Auth      AuthService
	Profiles  repository.ProfileRepository
	Pets      PetService
	Records   RecordService
	Quota     QuotaReporter
	DB        Pinger
	Summaries repository.HealthRecordRepository
	Limiter   *middleware.LimiterStore
	Logger    *zap.Logger
	// ExposeResetTokens logs password reset tokens at debug level. Development only.
	ExposeResetTokens bool
	// OperatorToken enables the /api/admin routes. Empty leaves them unmounted.
	OperatorToken string
	// GraphQL is served at /api/graphql behind the bearer session when set.
	GraphQL http.Handler
}

// Handler serves the REST API.
type Handler struct {
	auth              AuthService
	profiles          repository.ProfileRepository
	pets              PetService
	records           RecordService
	quota             QuotaReporter
	db                Pinger
	logger            *zap.Logger
	exposeResetTokens bool
}

const maxUploadBytes = 10 << 20

// NewRouter builds the HTTP routes.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		auth:              deps.Auth,
		profiles:          deps.Profiles,
		pets:              deps.Pets,
		records:           deps.Records,
		quota:             deps.Quota,
		db:                deps.DB,
		logger:            logger,
		exposeResetTokens: deps.ExposeResetTokens,
	}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(logger))
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	apiRouter := r.PathPrefix("/api").Subrouter()

	// anonymous routes are limited per client IP, the rest per principal
	public := apiRouter.PathPrefix("/auth").Subrouter()
	if deps.Limiter != nil {
		public.Use(middleware.RateLimit(deps.Limiter, logger))
	}
	public.HandleFunc("/signup", h.signUp).Methods(http.MethodPost)
	public.HandleFunc("/signin", h.signIn).Methods(http.MethodPost)
	public.HandleFunc("/signout", h.signOut).Methods(http.MethodPost)
	public.HandleFunc("/password-reset", h.requestPasswordReset).Methods(http.MethodPost)
	public.HandleFunc("/password-reset/confirm", h.confirmPasswordReset).Methods(http.MethodPost)

	// plan changes come from billing or an operator, never from the user
	if deps.OperatorToken != "" {
		admin := apiRouter.PathPrefix("/admin").Subrouter()
		admin.Use(middleware.RequireOperator(deps.OperatorToken, logger))
		admin.HandleFunc("/profiles/{userID}/tier", h.changeTier).Methods(http.MethodPut)
	}

	private := apiRouter.NewRoute().Subrouter()
	// by client IP before the session lookup, by principal after it
	if deps.Limiter != nil {
		private.Use(middleware.RateLimit(deps.Limiter, logger))
	}
	private.Use(middleware.RequireAuth(deps.Auth, logger))
	if deps.Summaries != nil {
		private.Use(middleware.DataLoaderMiddleware(deps.Summaries))
	}
	if deps.Limiter != nil {
		private.Use(middleware.RateLimit(deps.Limiter, logger))
	}

	private.HandleFunc("/profile", h.getProfile).Methods(http.MethodGet)
	private.HandleFunc("/profile", h.updateProfile).Methods(http.MethodPatch)
	private.HandleFunc("/quota", h.getQuota).Methods(http.MethodGet)

	private.HandleFunc("/pets", h.listPets).Methods(http.MethodGet)
	private.HandleFunc("/pets", h.createPet).Methods(http.MethodPost)
	private.HandleFunc("/pets/{petID}", h.getPet).Methods(http.MethodGet)
	private.HandleFunc("/pets/{petID}", h.updatePet).Methods(http.MethodPatch)
	private.HandleFunc("/pets/{petID}", h.deletePet).Methods(http.MethodDelete)

	private.HandleFunc("/pets/{petID}/records", h.listRecords).Methods(http.MethodGet)
	private.HandleFunc("/pets/{petID}/records", h.createRecord).Methods(http.MethodPost)
	private.HandleFunc("/pets/{petID}/records/import", h.importRecords).Methods(http.MethodPost)
	private.HandleFunc("/pets/{petID}/records/export", h.exportRecords).Methods(http.MethodGet)
	private.HandleFunc("/pets/{petID}/records/{recordID}", h.getRecord).Methods(http.MethodGet)
	private.HandleFunc("/pets/{petID}/records/{recordID}", h.updateRecord).Methods(http.MethodPatch)
	private.HandleFunc("/pets/{petID}/records/{recordID}", h.deleteRecord).Methods(http.MethodDelete)

	private.HandleFunc("/pets/{petID}/timeline", h.getTimeline).Methods(http.MethodGet)
	private.HandleFunc("/pets/{petID}/timeline/toggle", h.toggleFilter).Methods(http.MethodPost)

	if deps.GraphQL != nil {
		private.Handle("/graphql", deps.GraphQL).Methods(http.MethodGet, http.MethodPost)
	}

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func principal(r *http.Request) uuid.UUID {
	id, _ := auth.PrincipalFromContext(r.Context())
	return id
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, invalidID(name)
	}
	return id, nil
}
