package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"iwasp/internal/api/middleware"
	"iwasp/internal/assetgate"
	"iwasp/internal/config"
	"iwasp/internal/database"
	"iwasp/internal/errcode"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/session"
	"iwasp/internal/tasks"
)

type fakeStorage struct {
	uploaded map[string][]byte
	deleted  []string
	params   map[string]map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}, params: map[string]map[string]string{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{Key: objectName}, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func (s *fakeStorage) GeneratePresignedURLWithParams(_ context.Context, objectKey string, _ time.Duration, params map[string]string) (string, error) {
	s.params[objectKey] = params
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) ReadAsset(_ context.Context, key string) ([]byte, error) {
	b, ok := s.uploaded[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-" + strconv.Itoa(len(q.tasks)), Type: task.Type()}, nil
}

type fakeCounter struct {
	counts map[string]int64
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(context.Context, string, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

type fakeScanner struct{ err error }

func (s fakeScanner) Scan(context.Context, io.Reader) error { return s.err }

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	storage  *fakeStorage
	queue    *fakeQueue
	sessions *session.Service
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions, err := session.NewService(strings.Repeat("k", 32), "iwasp-test")
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	store := newFakeStorage()
	rz, err := raster.New(store)
	if err != nil {
		t.Fatalf("rasterizer: %v", err)
	}
	r, err := render.NewRenderer(428, rz.Fonts)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	cfg := &config.Config{
		API:    config.APIConfig{InternalSecret: "ops-secret"},
		Upload: config.UploadConfig{MaxBytes: 1 << 20, DailyLimit: 0},
	}

	srv := &testServer{
		router:   NewRouter(nil),
		db:       newTestDB(t),
		storage:  store,
		queue:    &fakeQueue{},
		sessions: sessions,
	}
	deps := Deps{
		DB:         srv.db,
		Queue:      srv.queue,
		Sessions:   sessions,
		Storage:    store,
		Renderer:   r,
		Rasterizer: rz,
		Gate:       assetgate.New(2),
		Scanner:    fakeScanner{},
		Config:     cfg,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	RegisterRoutes(srv.router, deps)
	return srv
}

func (s *testServer) token(t *testing.T, sessionID, order string) string {
	t.Helper()
	tok, err := s.sessions.Issue(sessionID, order, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	return s.do(t, method, path, token, body, "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func codeOf(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	v, _ := decode(t, w)["code"].(float64)
	return int(v)
}

// createDesign 通过 API 创建设计稿并返回其路径前缀。
func (s *testServer) createDesign(t *testing.T, token string) string {
	t.Helper()
	w := s.doJSON(t, http.MethodPost, "/v1/designs", token, gin.H{
		"template_id":  "iwasp-black",
		"printed_name": "Ada Lovelace",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create design: %d %s", w.Code, w.Body.String())
	}
	id := int(decode(t, w)["id"].(float64))
	return "/v1/designs/" + strconv.Itoa(id)
}

func (s *testServer) lock(t *testing.T, token, base string) {
	t.Helper()
	for _, step := range []string{"/validate", "/lock"} {
		if w := s.doJSON(t, http.MethodPost, base+step, token, nil); w.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", step, w.Code, w.Body.String())
		}
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartFile(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func (s *testServer) uploadLogo(t *testing.T, token, base string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartFile(t, "logo.png", content)
	return s.do(t, http.MethodPost, base+"/logo", token, body, ct)
}

func TestDesignsRequireSession(t *testing.T) {
	s := newTestServer(t)
	if w := s.doJSON(t, http.MethodPost, "/v1/designs", "", gin.H{}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", w.Code)
	}
	if w := s.doJSON(t, http.MethodPost, "/v1/designs", "garbage", gin.H{}); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token got %d", w.Code)
	}
}

func TestCreateDesignTakesOrderFromSession(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-2026-0042")

	w := s.doJSON(t, http.MethodPost, "/v1/designs", tok, gin.H{"printed_name": "Ada Lovelace"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d %s", w.Code, w.Body.String())
	}
	got := decode(t, w)
	if got["order_number"] != "CMD-2026-0042" || got["session_id"] != "sess-1" {
		t.Fatalf("unexpected ownership: %v", got)
	}
	if got["status"] != "draft" || got["template_id"] != "iwasp-black" || got["color_id"] != "onyx" {
		t.Fatalf("unexpected defaults: %v", got)
	}
}

func TestCreateDesignUnknownColorFailsClosed(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")

	w := s.doJSON(t, http.MethodPost, "/v1/designs", tok, gin.H{"color_id": "fuchsia"})
	if w.Code != http.StatusBadRequest || codeOf(t, w) != errcode.UnknownColor {
		t.Fatalf("expected 400/%d got %d %s", errcode.UnknownColor, w.Code, w.Body.String())
	}
}

func TestDesignIsScopedToSession(t *testing.T) {
	s := newTestServer(t)
	base := s.createDesign(t, s.token(t, "sess-1", "CMD-1"))

	w := s.doJSON(t, http.MethodGet, base, s.token(t, "sess-2", "CMD-2"), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign design got %d", w.Code)
	}
}

func TestLockedDesignRejectsChanges(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)
	s.lock(t, tok, base)

	w := s.doJSON(t, http.MethodPatch, base, tok, gin.H{"printed_name": "Grace Hopper"})
	if w.Code != http.StatusConflict || codeOf(t, w) != errcode.DesignLocked {
		t.Fatalf("expected 409/%d got %d %s", errcode.DesignLocked, w.Code, w.Body.String())
	}
	if w := s.uploadLogo(t, tok, base, pngBytes(t, 700, 700)); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for logo on locked design got %d", w.Code)
	}
	if len(s.storage.uploaded) != 0 {
		t.Fatalf("nothing should be stored for a locked design")
	}
}

func TestLockRequiresValidation(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)

	w := s.doJSON(t, http.MethodPost, base+"/lock", tok, nil)
	if w.Code != http.StatusBadRequest || codeOf(t, w) != errcode.InvalidField {
		t.Fatalf("expected 400/%d got %d %s", errcode.InvalidField, w.Code, w.Body.String())
	}
}

func TestUploadLogoTooSmallIsBlocked(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)

	w := s.uploadLogo(t, tok, base, pngBytes(t, 80, 80))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d %s", w.Code, w.Body.String())
	}
	got := decode(t, w)
	if int(got["code"].(float64)) != errcode.AssetTooSmall || got["min_width_px"].(float64) != 300 {
		t.Fatalf("unexpected body: %v", got)
	}
	if !strings.Contains(got["error"].(string), "300×300") {
		t.Fatalf("message should state the minimum: %q", got["error"])
	}
	if len(s.storage.uploaded) != 0 {
		t.Fatalf("blocked logo must not be stored")
	}
	if logo := decode(t, s.doJSON(t, http.MethodGet, base, tok, nil))["logo"]; logo != nil {
		t.Fatalf("design must be unchanged, got logo %v", logo)
	}
}

func TestUploadLogoSuboptimalWarns(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)

	w := s.uploadLogo(t, tok, base, pngBytes(t, 400, 400))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d %s", w.Code, w.Body.String())
	}
	got := decode(t, w)
	if int(got["code"].(float64)) != errcode.AssetSuboptimal || got["warning"] == "" {
		t.Fatalf("expected suboptimal warning: %v", got)
	}
	if len(s.storage.uploaded) != 1 {
		t.Fatalf("expected one stored object got %d", len(s.storage.uploaded))
	}

	d := decode(t, s.doJSON(t, http.MethodGet, base, tok, nil))
	quality := d["logo_quality"].(map[string]any)
	if quality["is_valid"] != true || quality["is_optimal"] != false {
		t.Fatalf("unexpected quality: %v", quality)
	}

	// Replacing the logo removes the previous object.
	if w := s.uploadLogo(t, tok, base, pngBytes(t, 700, 700)); w.Code != http.StatusCreated {
		t.Fatalf("replace logo: %d %s", w.Code, w.Body.String())
	}
	if len(s.storage.uploaded) != 1 || len(s.storage.deleted) != 1 {
		t.Fatalf("expected old logo deleted, uploaded=%d deleted=%d", len(s.storage.uploaded), len(s.storage.deleted))
	}

	if w := s.doJSON(t, http.MethodDelete, base+"/logo", tok, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete logo: %d", w.Code)
	}
	if len(s.storage.uploaded) != 0 {
		t.Fatalf("expected logo object removed")
	}
}

func TestUploadLogoMalwareRejected(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Scanner = fakeScanner{err: assetgate.ErrMalware} })
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)

	w := s.uploadLogo(t, tok, base, pngBytes(t, 700, 700))
	if w.Code != http.StatusBadRequest || codeOf(t, w) != errcode.AssetRejected {
		t.Fatalf("expected 400/%d got %d %s", errcode.AssetRejected, w.Code, w.Body.String())
	}
	if len(s.storage.uploaded) != 0 {
		t.Fatalf("infected file must not be stored")
	}
}

func TestUploadLogoDailyLimit(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.UploadCounter = &fakeCounter{counts: map[string]int64{}}
		d.Config.Upload.DailyLimit = 1
	})
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)

	if w := s.uploadLogo(t, tok, base, pngBytes(t, 700, 700)); w.Code != http.StatusCreated {
		t.Fatalf("first upload: %d %s", w.Code, w.Body.String())
	}
	if w := s.uploadLogo(t, tok, base, pngBytes(t, 700, 700)); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", w.Code)
	}
}

func TestLayoutPrintRequiresLock(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)

	w := s.doJSON(t, http.MethodGet, base+"/layout?mode=print", tok, nil)
	if w.Code != http.StatusConflict || codeOf(t, w) != errcode.NotLocked {
		t.Fatalf("expected 409/%d got %d %s", errcode.NotLocked, w.Code, w.Body.String())
	}

	w = s.doJSON(t, http.MethodGet, base+"/layout?mode=preview&guides=true", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview layout: %d %s", w.Code, w.Body.String())
	}
	var tree render.Tree
	if err := json.Unmarshal(w.Body.Bytes(), &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if tree.WidthPx != 428 {
		t.Fatalf("expected preview width 428 got %v", tree.WidthPx)
	}
}

func TestPreviewPNG(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)

	w := s.do(t, http.MethodGet, base+"/preview.png?scale=2", tok, nil, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	cfg, err := png.DecodeConfig(w.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if cfg.Width != 856 {
		t.Fatalf("expected 856 px wide got %d", cfg.Width)
	}

	if w := s.do(t, http.MethodGet, base+"/preview.png?scale=9", tok, nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for scale 9 got %d", w.Code)
	}
}

func TestRequestExportRequiresLock(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)

	w := s.doJSON(t, http.MethodPost, base+"/export", tok, gin.H{"quantity": 100})
	if w.Code != http.StatusConflict || codeOf(t, w) != errcode.NotLocked {
		t.Fatalf("expected 409/%d got %d %s", errcode.NotLocked, w.Code, w.Body.String())
	}
	if len(s.queue.tasks) != 0 {
		t.Fatalf("no task should be queued")
	}
}

func TestRequestExportQueuesTask(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)
	s.lock(t, tok, base)

	w := s.doJSON(t, http.MethodPost, base+"/export", tok, gin.H{"quantity": 100})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d %s", w.Code, w.Body.String())
	}
	if len(s.queue.tasks) != 1 || s.queue.tasks[0].Type() != tasks.TypeCardExport {
		t.Fatalf("expected one card export task, got %v", s.queue.tasks)
	}
	var payload tasks.CardExportPayload
	if err := json.Unmarshal(s.queue.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Quantity != 100 || payload.OrderNumber != "CMD-1" || payload.ExportID == 0 || payload.CorrelationID == "" || payload.SessionID != "sess-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	got := decode(t, s.doJSON(t, http.MethodGet, base+"/export", tok, nil))
	if got["status"] != database.ExportQueued {
		t.Fatalf("expected queued export got %v", got)
	}
}

func TestRequestExportConflict(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)
	s.lock(t, tok, base)
	s.queue.err = asynq.ErrTaskIDConflict

	w := s.doJSON(t, http.MethodPost, base+"/export", tok, gin.H{"quantity": 1})
	if w.Code != http.StatusConflict || codeOf(t, w) != errcode.ExportInProgress {
		t.Fatalf("expected 409/%d got %d %s", errcode.ExportInProgress, w.Code, w.Body.String())
	}
	var count int64
	s.db.Unscoped().Model(&database.Export{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected export must not leave a row, got %d", count)
	}
}

func TestGetExportCompletedHasDownloadLinks(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sess-1", "CMD-1")
	base := s.createDesign(t, tok)
	id, _ := strconv.Atoi(strings.TrimPrefix(base, "/v1/designs/"))

	exp := database.Export{
		DesignID:     uint(id),
		OrderNumber:  "CMD-1",
		Quantity:     10,
		Status:       database.ExportCompleted,
		CardKey:      "card-exports/CMD-1/IWASP_Carte_CMD-1.pdf",
		InfoSheetKey: "card-exports/CMD-1/IWASP_Fiche_CMD-1.pdf",
		Manifest:     []byte(`{"effective_dpi":1200}`),
	}
	if err := s.db.Create(&exp).Error; err != nil {
		t.Fatalf("seed export: %v", err)
	}

	w := s.doJSON(t, http.MethodGet, base+"/export", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d %s", w.Code, w.Body.String())
	}
	got := decode(t, w)
	if got["card_file"] != "IWASP_Carte_CMD-1.pdf" || got["info_sheet_url"] == "" {
		t.Fatalf("unexpected export body: %v", got)
	}
	if _, err := url.Parse(got["card_url"].(string)); err != nil {
		t.Fatalf("bad card url: %v", err)
	}
	disposition := s.storage.params[exp.CardKey]["response-content-disposition"]
	if !strings.Contains(disposition, `filename="IWASP_Carte_CMD-1.pdf"`) {
		t.Fatalf("unexpected disposition %q", disposition)
	}
}

func TestInternalThumbnailsRequiresSecret(t *testing.T) {
	s := newTestServer(t)

	if w := s.doJSON(t, http.MethodPost, "/internal/catalog/thumbnails", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/catalog/thumbnails", strings.NewReader(`{"template_ids":["iwasp-pure"]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", "ops-secret")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d %s", w.Code, w.Body.String())
	}
	if len(s.queue.tasks) != 1 || s.queue.tasks[0].Type() != tasks.TypeCatalogThumbnails {
		t.Fatalf("expected thumbnail task")
	}
}

func TestCatalog(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/v1/catalog/colors", "/v1/catalog/templates", "/v1/catalog/specs"} {
		w := s.doJSON(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, w.Code)
		}
		if items, _ := decode(t, w)["items"].([]any); len(items) == 0 {
			t.Fatalf("%s: empty catalog", path)
		}
	}
}

func TestUploadCountKeyRollsDaily(t *testing.T) {
	a := uploadCountKey("s", time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC))
	b := uploadCountKey("s", time.Date(2026, 5, 2, 0, 1, 0, 0, time.UTC))
	if a == b || a != "upload_count:s:20260501" {
		t.Fatalf("unexpected keys %q %q", a, b)
	}
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.CorrelationIDHeader, "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get(middleware.CorrelationIDHeader); got != "req-123" {
		t.Fatalf("expected echoed id got %q", got)
	}
}
