package server

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"Videoflix/cache"
	"Videoflix/config"
	"Videoflix/core/auth"
	"Videoflix/core/hls"
	"Videoflix/model"
	"Videoflix/queue"
	"Videoflix/repository"

	"github.com/gorilla/mux"
)

// fakeVideoRepo 按插入顺序返回列表，测试自己负责排好序
type fakeVideoRepo struct {
	mu     sync.Mutex
	nextID int64
	videos []*model.Video
	loads  int
}

func (r *fakeVideoRepo) CreateVideo(video *model.Video) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	video.ID = r.nextID
	r.videos = append(r.videos, video)
	return video.ID, nil
}

func (r *fakeVideoRepo) GetVideoByID(id int64) (*model.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.videos {
		if v.ID == id {
			return v, nil
		}
	}
	return nil, nil
}

func (r *fakeVideoRepo) GetAllVideos() ([]*model.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	return append([]*model.Video(nil), r.videos...), nil
}

func (r *fakeVideoRepo) UpdateVideo(video *model.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.videos {
		if v.ID == video.ID {
			r.videos[i] = video
			return nil
		}
	}
	return nil
}

func (r *fakeVideoRepo) DeleteVideo(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.videos {
		if v.ID == id {
			r.videos = append(r.videos[:i], r.videos[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeVideoRepo) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (r *fakeUserRepo) CreateUser(user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateUser
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetUserByID(id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeUserRepo) GetUserByEmail(email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) ActivateUser(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.IsActive = true
	}
	return nil
}

func (r *fakeUserRepo) UpdatePassword(id int64, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

// captureMailer 收集发出的邮件，不实际发送
type captureMailer struct {
	mu   sync.Mutex
	sent []model.EmailMessage
}

func (m *captureMailer) Send(msg model.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) last(t *testing.T) model.EmailMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail was sent")
	}
	return m.sent[len(m.sent)-1]
}

type testEnv struct {
	router     *mux.Router
	handler    *APIHandler
	cfg        *config.Config
	videoRepo  *fakeVideoRepo
	userRepo   *fakeUserRepo
	memStore   *cache.MemoryStore
	renditions *hls.Store
	jobs       *queue.MemoryQueue
	mailer     *captureMailer
	jwt        *auth.JWTManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mediaRoot := t.TempDir()
	cfg := &config.Config{
		MediaRoot:          mediaRoot,
		VideoDir:           filepath.Join(mediaRoot, "videos"),
		ThumbnailDir:       filepath.Join(mediaRoot, "thumbnails"),
		JWTSecret:          "test-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		ActivationTokenTTL: time.Hour,
		FrontendURL:        "http://localhost:4200",
		WorkerCount:        1,
	}

	videoRepo := &fakeVideoRepo{}
	userRepo := newFakeUserRepo()
	memStore := cache.NewMemoryStore()
	renditions := hls.NewStore(mediaRoot)
	videoCache := cache.NewVideoCache(memStore, renditions)
	jobs := queue.NewMemoryQueue(16)
	notifier := queue.NewMemoryNotifier()
	locker := queue.NewVideoLocker()
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.ActivationTokenTTL)
	mailer := &captureMailer{}

	handler := NewAPIHandler(cfg, videoRepo, userRepo, videoCache, memStore, renditions,
		jobs, notifier, locker, jwtManager, tokenManager, mailer, nil)

	return &testEnv{
		router:     NewRouter(handler, cfg),
		handler:    handler,
		cfg:        cfg,
		videoRepo:  videoRepo,
		userRepo:   userRepo,
		memStore:   memStore,
		renditions: renditions,
		jobs:       jobs,
		mailer:     mailer,
		jwt:        jwtManager,
	}
}

// accessToken issues a valid bearer token for authenticated routes.
func (e *testEnv) accessToken(t *testing.T) string {
	t.Helper()
	token, err := e.jwt.GenerateAccessToken(1, "tester@example.com")
	if err != nil {
		t.Fatal(err)
	}
	return token
}

// seedVideo inserts a record with a real source file on disk.
func (e *testEnv) seedVideo(t *testing.T, title string) *model.Video {
	t.Helper()
	if err := os.MkdirAll(e.cfg.VideoDir, 0755); err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(e.cfg.VideoDir, title+".mp4")
	if err := os.WriteFile(source, []byte("mp4"), 0644); err != nil {
		t.Fatal(err)
	}

	video := &model.Video{Title: title, FilePath: source, CreatedAt: time.Now()}
	if _, err := e.videoRepo.CreateVideo(video); err != nil {
		t.Fatal(err)
	}
	return video
}

// seedArtifacts writes a rendition tree plus master playlist for a video.
func (e *testEnv) seedArtifacts(t *testing.T, videoID int64, rendition string, segments ...string) {
	t.Helper()
	dir := e.renditions.RenditionDir(videoID, rendition)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(e.renditions.IndexPath(videoID, rendition), []byte("#EXTM3U\n"), 0644); err != nil {
		t.Fatal(err)
	}
	for _, seg := range segments {
		if err := os.WriteFile(filepath.Join(dir, seg), []byte("ts-"+seg), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.renditions.WriteMaster(videoID, hls.MasterPlaylist(e.renditions.PresentRenditions(videoID))); err != nil {
		t.Fatal(err)
	}
}
