package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"mtehis/internal/config"
	"mtehis/internal/handler"
	"mtehis/internal/middleware"
	"mtehis/internal/pipeline"
	"mtehis/internal/repository"
	"mtehis/internal/service"
	"mtehis/internal/toolset"
)

type Server struct {
	router *gin.Engine
	db     *sqlx.DB
	cfg    *config.Config
	logger *zap.Logger
}

func NewServer(db *sqlx.DB, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		router: gin.Default(),
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	toolsetRepo := repository.NewToolsetRepository(s.db, s.logger)
	anomalyRepo := repository.NewAnomalyRepository(s.db, s.logger)
	authRepo := repository.NewAuthRepository(s.db, s.logger)

	registry := toolset.NewRegistry(toolsetRepo, s.logger)
	detectionPipeline := pipeline.NewDetectionPipeline(registry, anomalyRepo, s.logger)
	trainingPipeline := pipeline.NewTrainingPipeline(registry, s.logger)

	jwtSecret := []byte(s.cfg.Auth.JWTSecret)
	tokenTTL := time.Duration(s.cfg.Auth.TokenTTLHours) * time.Hour
	authService := service.NewAuthService(authRepo, jwtSecret, tokenTTL, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	detectHandler := handler.NewDetectHandler(detectionPipeline, s.logger)
	trainHandler := handler.NewTrainHandler(trainingPipeline, s.logger)
	toolsetHandler := handler.NewToolsetHandler(toolsetRepo, registry, s.cfg.Training.DefaultIterations, s.logger)
	anomalyHandler := handler.NewAnomalyHandler(detectionPipeline, anomalyRepo, registry, s.logger)

	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	authGroup := s.router.Group("/api/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	// Scoring and training are consumed by trusted internal collectors
	// and stay unauthenticated, like the health check.
	api := s.router.Group("/api")
	api.POST("/detect", detectHandler.Detect)
	api.POST("/train", trainHandler.Train)
	api.GET("/train/:toolset/status", trainHandler.Status)
	api.GET("/anomalies", anomalyHandler.ListAnomalies)

	// Administrative routes
	admin := s.router.Group("/api")
	admin.Use(middleware.AuthMiddleware(jwtSecret, s.logger))
	{
		admin.POST("/toolsets", toolsetHandler.Create)
		admin.GET("/toolsets", toolsetHandler.List)
		admin.GET("/toolsets/active", toolsetHandler.Active)
		admin.POST("/toolsets/flush", toolsetHandler.Flush)
		admin.PUT("/toolsets/:name/class-mappings", anomalyHandler.SetClassMapping)
		admin.GET("/toolsets/:name/class-mappings", anomalyHandler.ListClassMappings)
		admin.POST("/anomaly-classes", anomalyHandler.CreateClass)
		admin.GET("/anomaly-classes", anomalyHandler.ListClasses)
		admin.POST("/anomalies/:id/label", anomalyHandler.LabelAnomaly)
	}
}

func (s *Server) Run(addr string) {
	s.logger.Info("Server starting", zap.String("addr", addr))
	if err := s.router.Run(addr); err != nil {
		s.logger.Fatal("Server failed to start", zap.Error(err))
	}
}
