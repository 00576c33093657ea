package http

import (
	"net/http"

	"eatauthentically/internal/auth"
	"eatauthentically/internal/claim"
	"eatauthentically/internal/config"
	"eatauthentically/internal/http/handler"
	mw "eatauthentically/internal/http/middleware"
	"eatauthentically/internal/lock"
	"eatauthentically/internal/producer"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the services the HTTP layer is built from.
type Deps struct {
	DB       *gorm.DB
	JWT      *auth.JWT
	Claims   *claim.Service
	Outreach handler.OutreachRunner
	Locker   lock.Locker
	Log      *zap.Logger
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	validate := validator.New()
	producers := &producer.Repo{DB: d.DB}
	apiKeys := &auth.APIKeyRepo{DB: d.DB}

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT, Log: d.Log}
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{Producers: producers, Log: d.Log}
	r.With(auth.RequireAuth(d.JWT)).Get("/me", me.Me)

	cron := &handler.CronHandler{Secret: cfg.CronSecret, Runner: d.Outreach, Locker: d.Locker, Log: d.Log}
	claimH := &handler.ClaimHandler{Claims: d.Claims, Producers: producers, JWT: d.JWT, Validate: validate, Log: d.Log}
	external := &handler.OutreachAPIHandler{Claims: d.Claims, Producers: producers, Validate: validate, Log: d.Log}

	r.Route("/api", func(r chi.Router) {
		r.Get("/cron", cron.Run)
		r.Get("/claim-invitations/{token}", claimH.Show)
		r.Post("/join-and-claim", claimH.JoinAndClaim)

		r.Route("/external/v1", func(r chi.Router) {
			r.Use(auth.RequireAPIKey(apiKeys, auth.ScopeOutreachWrite, d.Log))
			r.Post("/outreach/claimlink", external.CreateClaimLink)
		})
	})

	return r
}
