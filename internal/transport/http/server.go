package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nichat/nichat-server/internal/auth"
	"github.com/nichat/nichat-server/internal/config"
	"github.com/nichat/nichat-server/internal/core"
	"github.com/nichat/nichat-server/internal/service/contacts"
	"github.com/nichat/nichat-server/internal/store"
)

// NewServer builds the HTTP server: REST API plus the WebSocket relay
// endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, contactsService *contacts.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, st, logger)
	chatHandlers := NewChatHandlers(st, contactsService, logger)
	contactHandlers := NewContactHandlers(contactsService, st, logger)

	api := router.Group("/api")
	{
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		authed := api.Group("")
		authed.Use(AuthMiddleware(authService, logger))
		{
			authed.GET("/me", apiHandlers.Me)
			authed.PATCH("/me", apiHandlers.UpdateProfile)
			authed.GET("/users", apiHandlers.SearchUsers)

			authed.POST("/chats", chatHandlers.CreateChat)
			authed.GET("/chats", chatHandlers.ListChats)
			authed.GET("/chats/:id", chatHandlers.GetChat)
			authed.GET("/chats/:id/messages", chatHandlers.ListMessages)
			authed.POST("/chats/:id/participants", chatHandlers.AddParticipant)
			authed.DELETE("/chats/:id/participants/:userID", chatHandlers.RemoveParticipant)
			authed.DELETE("/messages/:id", chatHandlers.DeleteMessage)

			authed.GET("/contacts", contactHandlers.List)
			authed.POST("/contacts/:id/follow", contactHandlers.Follow)
			authed.DELETE("/contacts/:id/follow", contactHandlers.Unfollow)
			authed.POST("/contacts/:id/block", contactHandlers.Block)
			authed.DELETE("/contacts/:id/block", contactHandlers.Unblock)
		}
	}

	wsHandler := NewWSHandler(hub, authService, cfg, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
