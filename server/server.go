package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Videoflix/cache"
	"Videoflix/config"
	"Videoflix/core/auth"
	"Videoflix/core/hls"
	"Videoflix/core/mail"
	"Videoflix/db"
	"Videoflix/logger"
	"Videoflix/model"
	"Videoflix/queue"
	"Videoflix/repository"
	"Videoflix/storage"

	"github.com/gorilla/mux"
)

// Start initializes dependencies, wires the routes and runs the HTTP server
// until an interrupt signal arrives. 转码工作池内嵌在服务进程里一起启动。
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/videoflix.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// Connect to the databases
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("连接数据库失败", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("初始化数据库失败", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("连接GORM数据库失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.User{}); err != nil {
		logger.Fatal("迁移用户表失败", logger.ErrorField(err))
	}

	// Connect to Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("连接Redis失败", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	ensureDirExists(cfg.MediaRoot)
	ensureDirExists(cfg.VideoDir)
	ensureDirExists(cfg.ThumbnailDir)

	// 存储与缓存
	renditions := hls.NewStore(cfg.MediaRoot)
	store := cache.NewRedisStore(cache.RedisClient)
	videoCache := cache.NewVideoCache(store, renditions)

	// 仓库
	videoRepo := repository.NewMySQLVideoRepository(db.DB)
	userRepo := repository.NewGormUserRepository(db.GormDB)

	// 转码链路
	transcoder := hls.NewFFmpegTranscoder(cfg.FFmpegPath, renditions, cfg.FFmpegTimeout)
	jobs := queue.NewRedisQueue(cache.RedisClient)
	notifier := queue.NewRedisNotifier(cache.RedisClient)
	locker := queue.NewVideoLocker()
	pool := queue.NewPool(jobs, transcoder, videoRepo, videoCache, notifier, locker, cfg.WorkerCount)

	// 认证与邮件
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.ActivationTokenTTL)
	mailer := mail.NewMailer(cfg)

	archiver, err := storage.NewArchiver(cfg)
	if err != nil {
		logger.Fatal("初始化MinIO归档失败", logger.ErrorField(err))
	}

	apiHandler := NewAPIHandler(cfg, videoRepo, userRepo, videoCache, store, renditions,
		jobs, notifier, locker, jwtManager, tokenManager, mailer, archiver)

	router := NewRouter(apiHandler, cfg)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 内嵌工作池随服务一起启停
	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	if err := pool.Start(poolCtx); err != nil {
		logger.Fatal("启动转码工作池失败", logger.ErrorField(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("服务器启动", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("启动服务器失败", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器强制关闭", logger.ErrorField(err))
	}

	poolCancel()
	pool.Stop()

	logger.Info("服务器已停止")
}

// NewRouter builds the route table. Kept separate so handler tests can mount it.
func NewRouter(apiHandler *APIHandler, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()
	router.StrictSlash(true)

	// CORS中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 账号相关的API端点
	router.HandleFunc("/api/register/", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/activate/{uidb64}/{token}/", apiHandler.ActivateAccountHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/login/", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/logout/", apiHandler.LogoutHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/token/refresh/", apiHandler.TokenRefreshHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/password_reset/", apiHandler.PasswordResetHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/password_confirm/{uidb64}/{token}/", apiHandler.PasswordConfirmHandler).Methods(http.MethodPost)

	// 视频管理
	router.HandleFunc("/api/video/", apiHandler.AuthMiddleware(apiHandler.ListVideosHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/video/", apiHandler.AuthMiddleware(apiHandler.UploadVideoHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/video/{movie_id}/", apiHandler.AuthMiddleware(apiHandler.UpdateVideoHandler)).Methods(http.MethodPut, http.MethodPatch)
	router.HandleFunc("/api/video/{movie_id}/", apiHandler.AuthMiddleware(apiHandler.DeleteVideoHandler)).Methods(http.MethodDelete)

	// HLS播放
	router.HandleFunc("/api/video/{movie_id}/master.m3u8", apiHandler.AuthMiddleware(apiHandler.MasterPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/video/{movie_id}/progress", apiHandler.TranscodeProgressHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/video/{movie_id}/{resolution}/index.m3u8", apiHandler.AuthMiddleware(apiHandler.PlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/video/{movie_id}/{resolution}/{segment}", apiHandler.AuthMiddleware(apiHandler.SegmentHandler)).Methods(http.MethodGet)

	// 缩略图等媒体文件直接走文件服务
	mediaFileServer := http.FileServer(http.Dir(cfg.MediaRoot))
	router.PathPrefix("/media/").Handler(http.StripPrefix("/media/", mediaFileServer))

	return router
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Fatal("创建目录失败", logger.String("path", path), logger.ErrorField(err))
		}
	} else if err != nil {
		logger.Fatal("检查目录失败", logger.String("path", path), logger.ErrorField(err))
	}
}
