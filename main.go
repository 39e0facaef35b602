package main

import (
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"yatube/accounts"
	"yatube/backoffice"
	"yatube/cache"
	"yatube/common"
	"yatube/content"
	"yatube/database"
	"yatube/media"
	"yatube/metrics"
	"yatube/posts"
	"yatube/site"
)

func main() {
	cfg := common.LoadConfig()
	common.SetupLogging(cfg)

	db, err := common.ConnectDb(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	if cfg.SessionSecret == "" {
		log.Fatal("SESSION_SECRET environment variable not set")
	}

	m := metrics.InitMetrics()
	mediaStorage := media.NewStorage(cfg.MediaRoot, cfg.MediaURL)
	pageCache := cache.NewStore(cfg.CacheDir, cfg.IndexCacheTTL)
	svc := content.NewService(db, mediaStorage, cfg.ItemsPerPage)

	router := gin.New()
	router.Use(posts.Recovery(), common.RequestLogger(), m.Middleware())

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(common.SessionOptions())
	router.Use(sessions.Sessions("yatube-session", store))

	accountsModule := accounts.NewAccountsModule(db)
	router.Use(accountsModule.LoadUser)

	router.SetFuncMap(posts.TemplateFuncs(mediaStorage))
	router.LoadHTMLGlob("*/views/*.html")

	router.Static(cfg.MediaURL, cfg.MediaRoot)
	router.GET("/metrics", m.Handler())

	accountsModule.RegisterRoutes(router)

	siteModule := site.NewSiteModule(db, cfg.SiteURL)
	siteModule.RegisterRoutes(router)

	backofficeModule := backoffice.NewBackofficeModule(db, svc, pageCache, cfg.BackofficeUsers, cfg.LoginURL)
	backofficeModule.RegisterRoutes(router)

	postsModule := posts.NewPostsModule(svc, pageCache, m, cfg.LoginURL)
	postsModule.RegisterRoutes(router)

	router.NoRoute(posts.NotFound)

	go sweepCache(pageCache)

	log.WithField("port", cfg.Port).Info("Starting server")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// sweepCache removes expired page cache files so the cache dir does not grow
// without bound.
func sweepCache(store *cache.Store) {
	period := store.MaxAge()
	if period < time.Minute {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		if err := store.ClearExpired(); err != nil {
			log.WithError(err).Warn("page cache sweep failed")
		}
	}
}
