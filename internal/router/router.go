package router

import (
	"net/http"
	"strings"
	"time"

	"profilesite/internal/config"
	"profilesite/internal/handlers"
	"profilesite/internal/logger"
	"profilesite/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "profilesite_session"

// Handlers 路由用到的全部 handler
type Handlers struct {
	Auth     *handlers.AuthHandler
	Posts    *handlers.PostHandler
	Comments *handlers.CommentHandler
	Images   *handlers.ImageHandler
}

// New 创建 gin 引擎并注册中间件与路由
func New(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(), middleware.Recovery())

	// 只信任配置中的代理，ClientIP 用于评论限流
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.L.Warn().Err(err).Msg("invalid TRUSTED_PROXIES, ignoring forwarded headers")
		r.SetTrustedProxies(nil)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{cfg.SiteURL}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		Secure:   strings.HasPrefix(cfg.SiteURL, "https://"),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// 公共路由 (Public Routes)
	api.GET("/posts", h.Posts.List)
	api.GET("/posts/:slug", h.Posts.Get)
	api.GET("/posts/:slug/comments", h.Comments.List)
	api.POST("/posts/:slug/comments", h.Comments.Create)
	// 已上传图片
	api.GET("/uploads/*filepath", h.Images.Serve)

	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/logout", h.Auth.Logout)
	api.GET("/auth/session", h.Auth.Session)

	// 管理路由 (Admin Routes)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminRequired())
	{
		admin.GET("/posts", h.Posts.AdminList)
		admin.POST("/posts", h.Posts.Create)
		admin.GET("/posts/:slug", h.Posts.Get)
		admin.PUT("/posts/:slug", h.Posts.Update)
		admin.DELETE("/posts/:slug", h.Posts.Delete)

		// 本地上传 / 通过 URL 抓取
		admin.POST("/upload", h.Images.Upload)
		admin.POST("/upload-url", h.Images.UploadFromURL)
	}
}
