package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ziadismael/DevPath/interviewer/internal/handler/chat"
	"github.com/ziadismael/DevPath/interviewer/internal/handler/interview"
	"github.com/ziadismael/DevPath/interviewer/internal/handler/persona"
	"github.com/ziadismael/DevPath/interviewer/internal/metrics"
	middlewarePkg "github.com/ziadismael/DevPath/interviewer/internal/middleware"
	personaModel "github.com/ziadismael/DevPath/interviewer/internal/model/persona"
	chatService "github.com/ziadismael/DevPath/interviewer/internal/service/chat"
	interviewService "github.com/ziadismael/DevPath/interviewer/internal/service/interview"
	"github.com/ziadismael/DevPath/interviewer/internal/service/voice"
	"github.com/ziadismael/DevPath/interviewer/pkg/utils"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	Registry    *personaModel.Registry
	Sessions    *chatService.Service
	Analyzer    interviewService.Analyzer
	Responder   voice.Responder
	Metrics     *metrics.Recorder
	Logger      *zap.Logger
	Greeting    string
	ReadTimeout time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	personaHandler := persona.New(deps.Registry)
	chatHandler := chat.New(deps.Sessions)
	roomHandler := interview.NewWebSocketHandler(interview.Options{
		Sessions:    deps.Sessions,
		Registry:    deps.Registry,
		Analyzer:    deps.Analyzer,
		Responder:   deps.Responder,
		Metrics:     deps.Metrics,
		Logger:      logger,
		Greeting:    deps.Greeting,
		ReadTimeout: deps.ReadTimeout,
	})

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		roomHandler.RegisterRoutes(api)
	})

	return r
}
