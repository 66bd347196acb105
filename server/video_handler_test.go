package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func authedRequest(t *testing.T, env *testEnv, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+env.accessToken(t))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestListVideosServesSummaries(t *testing.T) {
	env := newTestEnv(t)

	newest := env.seedVideo(t, "newest")
	env.seedVideo(t, "older")

	rec := authedRequest(t, env, http.MethodGet, "/api/video/", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d, body %s", rec.Code, rec.Body)
	}

	var summaries []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0]["title"] != "newest" {
		t.Errorf("first entry = %v, want repo order preserved", summaries[0]["title"])
	}
	// 源文件路径绝不能出现在响应里
	if bytes.Contains(rec.Body.Bytes(), []byte(newest.FilePath)) {
		t.Errorf("listing leaks file paths: %s", rec.Body)
	}
}

func TestListVideosCached(t *testing.T) {
	env := newTestEnv(t)
	env.seedVideo(t, "one")

	for i := 0; i < 3; i++ {
		if rec := authedRequest(t, env, http.MethodGet, "/api/video/", nil, ""); rec.Code != http.StatusOK {
			t.Fatalf("list = %d", rec.Code)
		}
	}
	if env.videoRepo.loadCount() != 1 {
		t.Errorf("repo queried %d times, want 1", env.videoRepo.loadCount())
	}
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".mp4")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUploadVideoCreatesRecordAndEnqueues(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t,
		map[string]string{"title": "clip", "description": "d", "category": "drama"},
		map[string][]byte{"video_file": []byte("mp4-bytes")})

	rec := authedRequest(t, env, http.MethodPost, "/api/video/", body, contentType)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body %s", rec.Code, rec.Body)
	}

	video, err := env.videoRepo.GetVideoByID(1)
	if err != nil || video == nil {
		t.Fatalf("record not created: %v", err)
	}
	if _, err := os.Stat(video.FilePath); err != nil {
		t.Errorf("source file not stored: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job, err := env.jobs.Dequeue(ctx)
	if err != nil {
		t.Fatalf("no transcode job enqueued: %v", err)
	}
	if job.VideoID != video.ID {
		t.Errorf("job.VideoID = %d, want %d", job.VideoID, video.ID)
	}
}

func TestUploadVideoRequiresTitleAndFile(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, map[string]string{}, map[string][]byte{"video_file": []byte("x")})
	if rec := authedRequest(t, env, http.MethodPost, "/api/video/", body, contentType); rec.Code != http.StatusBadRequest {
		t.Errorf("upload without title = %d, want 400", rec.Code)
	}

	body, contentType = multipartBody(t, map[string]string{"title": "t"}, nil)
	if rec := authedRequest(t, env, http.MethodPost, "/api/video/", body, contentType); rec.Code != http.StatusBadRequest {
		t.Errorf("upload without file = %d, want 400", rec.Code)
	}
}

func TestUpdateVideoMetadata(t *testing.T) {
	env := newTestEnv(t)
	video := env.seedVideo(t, "before")

	body, contentType := multipartBody(t, map[string]string{"title": "after"}, nil)
	rec := authedRequest(t, env, http.MethodPut, "/api/video/1/", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d, body %s", rec.Code, rec.Body)
	}

	updated, _ := env.videoRepo.GetVideoByID(video.ID)
	if updated.Title != "after" {
		t.Errorf("title = %q, want %q", updated.Title, "after")
	}
	// 仅改元数据不应触发重新转码
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if job, err := env.jobs.Dequeue(ctx); err == nil {
		t.Errorf("metadata update enqueued job %+v", job)
	}
}

func TestUpdateVideoNotFound(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, map[string]string{"title": "x"}, nil)
	if rec := authedRequest(t, env, http.MethodPut, "/api/video/99/", body, contentType); rec.Code != http.StatusNotFound {
		t.Errorf("update missing video = %d, want 404", rec.Code)
	}
}

func TestDeleteVideoRemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	video := env.seedVideo(t, "doomed")
	env.seedArtifacts(t, video.ID, "480p", "segment_000.ts")

	// 预热播放缓存
	ctx := context.Background()
	if _, err := env.handler.videoCache.Playlist(ctx, video.ID, "480p"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.handler.videoCache.Segment(ctx, video.ID, "480p", "segment_000.ts"); err != nil {
		t.Fatal(err)
	}

	rec := authedRequest(t, env, http.MethodDelete, "/api/video/1/", nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, body %s", rec.Code, rec.Body)
	}

	if v, _ := env.videoRepo.GetVideoByID(video.ID); v != nil {
		t.Error("record still present after delete")
	}
	if _, err := os.Stat(video.FilePath); !os.IsNotExist(err) {
		t.Error("source file still present after delete")
	}
	if env.renditions.HasMaster(video.ID) || env.renditions.HasIndex(video.ID, "480p") {
		t.Error("hls artifacts still present after delete")
	}
	if env.memStore.Len() != 0 {
		t.Errorf("%d cache entries survived delete, want 0", env.memStore.Len())
	}

	// 删除后任何播放路径都应404
	if rec := authedRequest(t, env, http.MethodGet, "/api/video/1/master.m3u8", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("master after delete = %d, want 404", rec.Code)
	}
}

func TestDeleteVideoNotFound(t *testing.T) {
	env := newTestEnv(t)
	if rec := authedRequest(t, env, http.MethodDelete, "/api/video/42/", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete missing video = %d, want 404", rec.Code)
	}
}
