package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moodi-org/pass-backend/internal/middleware"
)

// Routes groups everything RegisterRoutes mounts
type Routes struct {
	Pass      *PassHandlers
	Health    *HealthHandlers
	Tokens    middleware.TokenParser
	UploadDir string
	PassDir   string
	// CORS wraps the API group only
	CORS      gin.HandlerFunc
}

// RegisterRoutes mounts the accommodation API, health endpoints and the
// static photo and pass directories.
func RegisterRoutes(router *gin.Engine, r Routes) {
	router.GET("/", r.Health.Health)
	router.GET("/health", r.Health.Health)
	router.GET("/ready", r.Health.Ready)

	api := router.Group("/api/accommodation")
	if r.CORS != nil {
		api.Use(r.CORS)
		// preflights only reach group middleware through a matching route
		api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
	{
		api.POST("/check", r.Pass.Check)
		api.GET("/check", r.Pass.Check)
		api.GET("/get", r.Pass.Get)
		api.GET("/get-image", r.Pass.GetImage)

		auth := api.Group("", middleware.BearerAuth(r.Tokens))
		auth.POST("/upload-image", r.Pass.UploadImage)
		auth.POST("/save-pass", r.Pass.SavePass)
	}

	router.Group("/uploads", middleware.HideDotFiles(), middleware.PublicAsset()).Static("/", r.UploadDir)
	router.Group("/passes", middleware.HideDotFiles(), middleware.PublicAsset()).Static("/", r.PassDir)
}
