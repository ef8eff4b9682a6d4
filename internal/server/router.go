package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jurisdesk/atendimento/internal/api/handler"
	"github.com/jurisdesk/atendimento/internal/api/middleware"
)

type Options struct {
	Env               string
	AuthSecret        string
	HealthHandler     *handler.HealthHandler
	ConnectionHandler *handler.ConnectionHandler
	TicketHandler     *handler.TicketHandler
	MessageHandler    *handler.MessageHandler
	ContactHandler    *handler.ContactHandler
	ProcessHandler    *handler.ProcessHandler
	EventsHandler     *handler.EventsHandler
	MediaHandler      *handler.MediaHandler
	RateLimit         middleware.RateLimitOption
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")

	opts.HealthHandler.Register(api)

	// URLs de mídia são opacas e de curta duração; servidas sem auth
	// para os links funcionarem direto no navegador do atendente.
	if opts.MediaHandler != nil {
		api.GET("/media/:connectionId/:mediaId", opts.MediaHandler.GetMedia)
	}

	protected := api.Group("")
	if opts.RateLimit.Enabled {
		protected.Use(middleware.RateLimit(opts.RateLimit))
	}
	protected.Use(middleware.Auth(opts.AuthSecret))

	opts.ConnectionHandler.Register(protected)
	opts.TicketHandler.Register(protected)
	opts.MessageHandler.Register(protected)
	opts.ContactHandler.Register(protected)
	opts.ProcessHandler.Register(protected)
	if opts.EventsHandler != nil {
		opts.EventsHandler.Register(protected)
	}

	return router
}
