package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/medbook/pkg/metrics"
)

type RouterDeps struct {
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Collector
	Tokens  middleware.TokenValidator

	// GlobalLimiter applies to every API route, AuthLimiter additionally
	// to the unauthenticated credential endpoints.
	GlobalLimiter *middleware.RateLimiter
	AuthLimiter   *middleware.RateLimiter

	Auth           *AuthHandler
	Users          *UserHandler
	Appointments   *AppointmentHandler
	Reviews        *ReviewHandler
	ClinicalRecord *ClinicalRecordHandler
	Health         *HealthHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Config.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) { respondError(c, http.StatusNotFound, "route not found") })
	r.NoMethod(func(c *gin.Context) { respondError(c, http.StatusMethodNotAllowed, "method not allowed") })

	upload := d.Config.Upload
	bodyLimit := upload.MaxFileSize*int64(max(upload.MaxFilesPerUpload, 1)) + 1<<20

	r.Use(
		middleware.RequestID(),
		middleware.Recovery(d.Log),
		middleware.Tracing(),
		middleware.Metrics(d.Metrics),
		middleware.AccessLog(d.Log, "/healthz", "/readyz", "/metrics"),
		middleware.SecurityHeaders(),
		middleware.CORS(d.Config.CORS),
	)

	r.GET("/healthz", d.Health.Live)
	r.GET("/readyz", d.Health.Ready)
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := r.Group("/api/v1", middleware.BodyLimit(bodyLimit))
	if d.GlobalLimiter != nil {
		api.Use(middleware.RateLimit(d.GlobalLimiter))
	}

	public := api.Group("")
	if d.AuthLimiter != nil {
		public.Use(middleware.RateLimit(d.AuthLimiter))
	}
	public.POST("/register", d.Auth.Register)
	public.POST("/login", d.Auth.Login)
	public.POST("/auth/refresh", d.Auth.Refresh)

	authed := api.Group("", middleware.Authenticate(d.Tokens))
	{
		authed.POST("/logout", d.Auth.Logout)
		authed.POST("/auth/mfa/enroll", d.Auth.EnrollMFA)
		authed.POST("/auth/mfa/enable", d.Auth.EnableMFA)

		authed.GET("/user", d.Users.Me)
		authed.GET("/profile", d.Users.Me)
		authed.PUT("/profile", d.Users.UpdateProfile)

		authed.GET("/doctors", d.Users.ListDoctors)
		authed.GET("/doctors/:id", d.Users.GetDoctor)
		authed.GET("/doctors/:id/reviews", d.Users.DoctorReviews)

		authed.GET("/patients", middleware.RequireRole(domain.RoleDoctor, domain.RoleAdmin), d.Users.ListPatients)
		authed.GET("/patients/:id", d.Users.GetPatient)

		authed.GET("/appointments", d.Appointments.List)
		authed.GET("/appointments/all", d.Appointments.ListAll)
		authed.GET("/appointments/:id", d.Appointments.Get)
		authed.POST("/appointments", d.Appointments.Create)
		authed.PUT("/appointments/:id", d.Appointments.UpdateStatus)
		authed.DELETE("/appointments/:id", d.Appointments.Delete)
		authed.POST("/appointments/:id/review", d.Reviews.Create)

		authed.PUT("/reviews/:id", d.Reviews.Update)
		authed.DELETE("/reviews/:id", d.Reviews.Delete)

		authed.GET("/clinical-records", d.ClinicalRecord.List)
		authed.POST("/clinical-records", d.ClinicalRecord.Create)
		authed.GET("/clinical-records/:id", d.ClinicalRecord.GetByAppointment)
		authed.PUT("/clinical-records/:id", d.ClinicalRecord.Update)
		authed.POST("/clinical-records/:id/upload-files", d.ClinicalRecord.UploadFiles)
		authed.DELETE("/clinical-records/:id/files", d.ClinicalRecord.DeleteFile)
		authed.DELETE("/clinical-records/:id/files/:fileId", d.ClinicalRecord.DeleteFile)
		authed.GET("/clinical-records/:id/download/:fileId", d.ClinicalRecord.Download)
	}

	return r
}
