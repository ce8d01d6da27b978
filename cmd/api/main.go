package main

import (
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	_ "github.com/courseloop/registration-api/api/swagger"
	"github.com/courseloop/registration-api/internal/handler"
	"github.com/courseloop/registration-api/internal/repository"
	"github.com/courseloop/registration-api/internal/router"
	"github.com/courseloop/registration-api/internal/service"
	"github.com/courseloop/registration-api/pkg/cache"
	"github.com/courseloop/registration-api/pkg/config"
	"github.com/courseloop/registration-api/pkg/database"
	"github.com/courseloop/registration-api/pkg/logger"
)

// @title Course Registration API
// @version 1.0.0
// @description Course catalog and student enrollment workflow
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	selectionRepo := repository.NewSelectionRepository(redisClient, cfg.Enrollment.SelectionTTL, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "registration-api",
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(studentSvc, courseRepo, registrationRepo, selectionRepo, metricsSvc, validate, logr)
	registrationSvc := service.NewRegistrationService(registrationRepo, studentRepo, courseRepo, userRepo, validate, logr)

	h := router.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Enrollment:   handler.NewEnrollmentHandler(enrollmentSvc),
		Course:       handler.NewCourseHandler(courseSvc),
		Student:      handler.NewStudentHandler(studentSvc),
		Registration: handler.NewRegistrationHandler(registrationSvc),
		Metrics:      handler.NewMetricsHandler(metricsSvc),
	}

	engine := router.New(h, router.Deps{
		Config:      cfg,
		Logger:      logr,
		AuthService: authSvc,
		Metrics:     metricsSvc,
		Users:       userRepo,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := engine.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
