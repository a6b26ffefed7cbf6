package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/streamchat/backend/docs" // Swagger docs
	"github.com/streamchat/backend/internal/infrastructure/config"
	"github.com/streamchat/backend/internal/infrastructure/log"
	"github.com/streamchat/backend/internal/infrastructure/singleton"
	"github.com/streamchat/backend/internal/interfaces/http/handler"
	"github.com/streamchat/backend/internal/interfaces/http/middleware"
	"github.com/streamchat/backend/internal/interfaces/mcp"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	serverConfig *config.ServerConfig,
	conversationHandler *handler.ConversationHandler,
	socketHandler *handler.SocketHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	logger := log.NewModuleLogger("http", "server")
	if !log.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(logger), middleware.EnsureUTF8Body())
	RegisterRoutes(router, conversationHandler, socketHandler)

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// MCP SSE 端点
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	return &HTTPServer{
		router:   router,
		httpPort: serverConfig.HTTPPort,
		logger:   logger,
	}
}

// RegisterRoutes 注册业务路由
func RegisterRoutes(router gin.IRouter, conversations *handler.ConversationHandler, sockets *handler.SocketHandler) {
	api := router.Group("/api/v1")
	{
		api.POST("/conversations", conversations.Create)
		api.GET("/conversations", conversations.List)
		api.DELETE("/conversations/:id", conversations.Delete)
		api.GET("/conversations/:id/messages", conversations.History)
		api.POST("/conversations/:id/messages", conversations.Send)
		api.PUT("/conversations/:id/messages/:messageId", conversations.Edit)
		api.POST("/conversations/:id/regenerate", conversations.Regenerate)
		api.POST("/conversations/:id/cancel", conversations.Cancel)
	}

	if sockets != nil {
		router.GET("/ws/conversations/:id", sockets.Conversation)
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": singleton.ServiceName})
	})
}

// Handler 返回路由，用于测试
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start 启动服务器，阻塞直到关闭
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:              s.httpPort,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
