package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"Videoflix/cache"
	"Videoflix/config"
	"Videoflix/core/auth"
	"Videoflix/core/hls"
	"Videoflix/core/mail"
	"Videoflix/queue"
	"Videoflix/repository"
	"Videoflix/storage"
)

// APIHandler bundles the dependencies of all HTTP handlers.
type APIHandler struct {
	cfg        *config.Config
	videoRepo  repository.VideoRepository
	userRepo   repository.UserRepository
	videoCache *cache.VideoCache
	store      cache.Store // 也承载refresh token黑名单
	renditions *hls.Store
	jobs       queue.Queue
	notifier   queue.Notifier
	locker     *queue.VideoLocker
	jwt        *auth.JWTManager
	tokens     *auth.TokenManager
	mailer     mail.Mailer
	archiver   *storage.Archiver // 可为nil
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(
	cfg *config.Config,
	videoRepo repository.VideoRepository,
	userRepo repository.UserRepository,
	videoCache *cache.VideoCache,
	store cache.Store,
	renditions *hls.Store,
	jobs queue.Queue,
	notifier queue.Notifier,
	locker *queue.VideoLocker,
	jwt *auth.JWTManager,
	tokens *auth.TokenManager,
	mailer mail.Mailer,
	archiver *storage.Archiver,
) *APIHandler {
	return &APIHandler{
		cfg:        cfg,
		videoRepo:  videoRepo,
		userRepo:   userRepo,
		videoCache: videoCache,
		store:      store,
		renditions: renditions,
		jobs:       jobs,
		notifier:   notifier,
		locker:     locker,
		jwt:        jwt,
		tokens:     tokens,
		mailer:     mailer,
		archiver:   archiver,
	}
}

// writeJSON serializes a response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError sends a JSON error body. 对外只暴露笼统信息，不泄露内部路径
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
