// Package httpapi is the JSON gateway in front of the directory services.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/waypoint-tourism/directory/internal/account"
	"github.com/waypoint-tourism/directory/internal/analytics"
	"github.com/waypoint-tourism/directory/internal/database"
	"github.com/waypoint-tourism/directory/internal/domain"
	"github.com/waypoint-tourism/directory/internal/httputil"
	"github.com/waypoint-tourism/directory/internal/logging"
	"github.com/waypoint-tourism/directory/internal/metrics"
	"github.com/waypoint-tourism/directory/internal/middleware"
	"github.com/waypoint-tourism/directory/internal/moderation"
	"github.com/waypoint-tourism/directory/internal/notify"
	"github.com/waypoint-tourism/directory/internal/onboarding"
	"github.com/waypoint-tourism/directory/internal/profile"
	"github.com/waypoint-tourism/directory/internal/session"
)

// ServiceName labels the gateway's metrics and logs.
const ServiceName = "directory"

// Config wires a Server. Auth, Repository and Profiles are required.
type Config struct {
	Auth       account.AuthBackend
	Repository database.RepositoryInterface
	Profiles   *profile.Loader
	Moderation *moderation.Service
	Onboarding *onboarding.Service
	Analytics  *analytics.Service
	Feed       *notify.Feed
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	Logger     *logging.Logger

	Authenticator *middleware.AuthMiddleware
	CORS          *middleware.CORSMiddleware
	RateLimiter   *middleware.RateLimiter
}

// Server serves the directory API.
type Server struct {
	auth       account.AuthBackend
	repo       database.RepositoryInterface
	profiles   *profile.Loader
	moderation *moderation.Service
	onboarding *onboarding.Service
	analytics  *analytics.Service
	feed       *notify.Feed
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	logger     *logging.Logger

	authn   *middleware.AuthMiddleware
	cors    *middleware.CORSMiddleware
	limiter *middleware.RateLimiter

	router *mux.Router
}

// NewServer validates cfg and registers every route.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Auth == nil || cfg.Repository == nil || cfg.Profiles == nil {
		return nil, errors.New("httpapi: auth, repository and profiles are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop
	}
	if cfg.Feed != nil {
		notifier = notify.Multi(notifier, cfg.Feed)
	}
	if cfg.Moderation == nil {
		cfg.Moderation = moderation.NewService(cfg.Repository, notifier, cfg.Metrics, cfg.Logger)
	}
	if cfg.Analytics == nil {
		cfg.Analytics = analytics.NewService(cfg.Repository)
	}

	s := &Server{
		auth:       cfg.Auth,
		repo:       cfg.Repository,
		profiles:   cfg.Profiles,
		moderation: cfg.Moderation,
		onboarding: cfg.Onboarding,
		analytics:  cfg.Analytics,
		feed:       cfg.Feed,
		notifier:   notifier,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		authn:      cfg.Authenticator,
		cors:       cfg.CORS,
		limiter:    cfg.RateLimiter,
		router:     mux.NewRouter(),
	}
	s.registerRoutes()
	return s, nil
}

// =============================================================================
// API Routes
// =============================================================================

func (s *Server) registerRoutes() {
	router := s.router
	router.Use(middleware.MetricsMiddleware(ServiceName, s.metrics))
	if s.authn != nil {
		router.Use(s.authn.Optional)
	}
	if s.limiter != nil {
		router.Use(s.limiter.Handler)
	}

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	router.HandleFunc("/auth/signup", s.handleSignUp).Methods("POST")
	router.HandleFunc("/auth/signin", s.handleSignIn).Methods("POST")
	router.HandleFunc("/auth/signout", s.handleSignOut).Methods("POST")
	router.HandleFunc("/auth/refresh", s.handleRefresh).Methods("POST")
	router.HandleFunc("/auth/reset", s.handleResetPassword).Methods("POST")

	router.HandleFunc("/me", s.handleGetMe).Methods("GET")
	router.HandleFunc("/me", s.handleUpdateMe).Methods("PATCH")
	router.HandleFunc("/me/notices", s.handleNotices).Methods("GET")

	router.HandleFunc("/listings", s.handleListListings).Methods("GET")
	router.HandleFunc("/listings", s.handleCreateListing).Methods("POST")
	router.HandleFunc("/listings/{id}", s.handleGetListing).Methods("GET")
	router.HandleFunc("/listings/{id}/reviews", s.handleListReviews).Methods("GET")
	router.HandleFunc("/listings/{id}/reviews", s.handleCreateReview).Methods("POST")
	router.HandleFunc("/listings/{id}/views", s.handleListingViews).Methods("GET")

	router.HandleFunc("/pois", s.handleListPOIs).Methods("GET")
	router.HandleFunc("/pois/{id}", s.handleGetPOI).Methods("GET")

	router.HandleFunc("/operators/onboard", s.handleOnboard).Methods("POST")
	router.HandleFunc("/operators/mine", s.handleMyOperators).Methods("GET")
	router.HandleFunc("/operators/{id}/documents", s.handleOperatorDocuments).Methods("GET")

	router.HandleFunc("/flags", s.handleCreateFlag).Methods("POST")

	router.HandleFunc("/admin/flags", s.handleAdminFlags).Methods("GET")
	router.HandleFunc("/admin/{kind}/{id}/actions", s.handleAdminActions).Methods("GET")
	router.HandleFunc("/admin/{kind}/{id}/{action}", s.handleAdminPerform).Methods("POST")
}

// Handler returns the full middleware chain around the router. Tracing and
// CORS sit outside the router so they also see preflights and unmatched paths.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.cors != nil {
		h = s.cors.Handler(h)
	}
	return middleware.NewTracingMiddleware(s.logger).Handler(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName})
}

// =============================================================================
// Request-scoped session
// =============================================================================

// requestSession is the account facade bound to a throwaway store. The
// tracker on the store runs the profile bootstrap on SIGNED_IN.
type requestSession struct {
	store   *session.Store
	tracker *profile.Tracker
	account *account.Service
}

func (s *Server) newSession() *requestSession {
	store := session.NewStore(nil, s.logger)
	tracker := profile.NewTracker(s.profiles)
	tracker.Attach(store)

	// Notices raised during sign-in happen before the context knows the user.
	notifier := notify.NotifierFunc(func(ctx context.Context, n notify.Notice) {
		if n.UserID == "" {
			if id := store.Identity(); id != nil {
				n.UserID = id.ID
			}
		}
		s.notifier.Notify(ctx, n)
	})

	return &requestSession{
		store:   store,
		tracker: tracker,
		account: account.New(s.auth, s.profiles, store, notifier, s.logger),
	}
}

// sessionFromRequest seeds a request session with the caller's bearer token.
func (s *Server) sessionFromRequest(r *http.Request) *requestSession {
	rs := s.newSession()
	identity := identityFrom(r)
	rs.store.Seed(&identity, &session.Tokens{AccessToken: database.AccessToken(r.Context())})
	return rs
}

// identityFrom builds the caller's identity from the verified token.
func identityFrom(r *http.Request) domain.Identity {
	identity := domain.Identity{ID: logging.GetUserID(r.Context())}
	if claims := middleware.GetClaims(r.Context()); claims != nil {
		identity.Email = claims.Email
		identity.Metadata = claims.UserMetadata
	}
	return identity
}

// currentProfile loads (or bootstraps) the caller's profile.
func (s *Server) currentProfile(r *http.Request) (*domain.Profile, error) {
	return s.profiles.Load(r.Context(), identityFrom(r))
}
