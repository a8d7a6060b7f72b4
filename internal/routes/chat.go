package routes

import (
	"github.com/artinerary/messaging-backend/internal/handlers"
	"github.com/artinerary/messaging-backend/internal/middleware"
	"github.com/gin-gonic/gin"
)

func RegisterChatRoutes(r gin.IRouter) {
	chat := r.Group("/chat")
	// Enforce strict auth for chat even if parent group is optional
	chat.Use(middleware.AuthMiddleware())
	{
		chat.GET("/users", handlers.ListUsers)
		chat.GET("/inbox", handlers.GetInbox)
		chat.GET("/conversations/:userId", handlers.OpenConversation) // ?from_event=true
		chat.POST("/messages", middleware.ChatRateLimit(), handlers.SendMessage)
		chat.GET("/messages/:userId", handlers.GetNewMessages) // ?lastId=N
		chat.GET("/unread-count", handlers.GetUnreadTotal)
		chat.POST("/conversations/:conversationId/hide", handlers.HideConversation)
		chat.POST("/online", handlers.UpdateOnlineStatus)
	}
}
