package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/courseloop/registration-api/internal/handler"
	"github.com/courseloop/registration-api/internal/middleware"
	"github.com/courseloop/registration-api/internal/models"
	"github.com/courseloop/registration-api/internal/repository"
	"github.com/courseloop/registration-api/internal/service"
	"github.com/courseloop/registration-api/pkg/config"
	"github.com/courseloop/registration-api/pkg/logger"
	corsmiddleware "github.com/courseloop/registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/courseloop/registration-api/pkg/middleware/requestid"
)

// Handlers aggregates every HTTP handler mounted by the router.
type Handlers struct {
	Auth         *handler.AuthHandler
	Enrollment   *handler.EnrollmentHandler
	Course       *handler.CourseHandler
	Student      *handler.StudentHandler
	Registration *handler.RegistrationHandler
	Metrics      *handler.MetricsHandler
}

// Deps carries the cross-cutting dependencies the router needs besides handlers.
type Deps struct {
	Config      *config.Config
	Logger      *zap.Logger
	AuthService *service.AuthService
	Metrics     *service.MetricsService
	Users       *repository.UserRepository
}

// New builds the gin engine with all middleware and routes mounted.
func New(h Handlers, deps Deps) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.Auth.Signup)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)

		authed := auth.Group("", middleware.JWT(deps.AuthService))
		authed.POST("/logout", h.Auth.Logout)
		authed.POST("/change-password", h.Auth.ChangePassword)
		authed.GET("/me", h.Auth.Me)
	}

	enroll := api.Group("/enroll", middleware.JWT(deps.AuthService))
	{
		enroll.GET("/status", h.Enrollment.Status)
		enroll.POST("/profile", h.Enrollment.SubmitProfile)
		enroll.GET("/courses", h.Enrollment.OpenCourses)
		enroll.POST("/select", h.Enrollment.SelectCourse)
		enroll.DELETE("/select", h.Enrollment.Restart)
		enroll.POST("/confirm", h.Enrollment.Confirm)
	}

	me := api.Group("/me", middleware.JWT(deps.AuthService))
	{
		me.GET("/registrations", h.Enrollment.MyRegistrations)
	}

	courses := api.Group("/courses", middleware.JWT(deps.AuthService))
	{
		courses.GET("", h.Course.List)
		courses.GET("/:id", h.Course.Get)

		staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
		courses.POST("", staffOnly, middleware.Audit(deps.Users, models.AuditActionCourseCreate, "courses"), h.Course.Create)
		courses.PUT("/:id", staffOnly, middleware.Audit(deps.Users, models.AuditActionCourseUpdate, "courses"), h.Course.Update)
		courses.DELETE("/:id", staffOnly, middleware.Audit(deps.Users, models.AuditActionCourseUpdate, "courses"), h.Course.Deactivate)
	}

	students := api.Group("/students", middleware.JWT(deps.AuthService), middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	{
		students.GET("", h.Student.List)
		students.GET("/:id", h.Student.Get)
	}

	registrations := api.Group("/registrations", middleware.JWT(deps.AuthService), middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	{
		registrations.GET("", h.Registration.List)
		registrations.GET("/export", h.Registration.Export)
		registrations.GET("/:id", h.Registration.Get)
		registrations.POST("", h.Registration.Create)
		registrations.PUT("/:id", h.Registration.Update)
		registrations.DELETE("/:id", h.Registration.Delete)
	}

	return r
}
