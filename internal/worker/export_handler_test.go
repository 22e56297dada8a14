package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"iwasp/internal/database"
	"iwasp/internal/design"
	"iwasp/internal/errcode"
	"iwasp/internal/export"
	"iwasp/internal/raster"
	"iwasp/internal/render"
	"iwasp/internal/storage"
	"iwasp/internal/tasks"
)

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
	failOn   string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && strings.Contains(objectName, s.failOn) {
		return nil, errors.New("bucket unavailable")
	}
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{}, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

type fakePublisher struct {
	channels []string
	messages []ExportNotifyMessage
}

func (p *fakePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	var msg ExportNotifyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, msg)
	return nil
}

type failingPipeline struct{ err error }

func (f failingPipeline) GeneratePrintPack(context.Context, *design.Design, export.Order) (*export.Pack, error) {
	return nil, f.err
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

func newTestPipeline(t *testing.T) *export.Pipeline {
	t.Helper()
	rz, err := raster.New(nil)
	if err != nil {
		t.Fatalf("rasterizer: %v", err)
	}
	r, err := render.NewRenderer(428, rz.Fonts)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	p, err := export.NewPipeline(r, rz, export.Options{Supersample: 1})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return p
}

func seedDesign(t *testing.T, db *gorm.DB, lock bool) database.Design {
	t.Helper()
	d, err := design.New("sess-1", "CMD-77", "iwasp-black", "")
	if err != nil {
		t.Fatalf("new design: %v", err)
	}
	name := "Ada Lovelace"
	if err := d.Apply(design.Changes{PrintedName: &name}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if lock {
		now := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
		if err := d.Validate(now); err != nil {
			t.Fatalf("validate: %v", err)
		}
		if err := d.Lock(now); err != nil {
			t.Fatalf("lock: %v", err)
		}
	}
	var row database.Design
	row.FromDomain(d)
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create design: %v", err)
	}
	return row
}

func exportTask(t *testing.T, designID uint) *asynq.Task {
	t.Helper()
	task, err := tasks.NewCardExportTask(tasks.CardExportPayload{
		DesignID: designID, OrderNumber: "CMD-77", Quantity: 50, CorrelationID: "corr-1",
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestExportTaskUploadsPackAndNotifies(t *testing.T) {
	db := newTestDB(t)
	row := seedDesign(t, db, true)
	store := newFakeStorage()
	pub := &fakePublisher{}
	h := NewExportTaskHandler(db, store, pub, newTestPipeline(t), slog.Default())

	if err := h.ProcessTask(context.Background(), exportTask(t, row.ID)); err != nil {
		t.Fatalf("process task: %v", err)
	}

	card := "card-exports/CMD-77/IWASP_Carte_CMD-77.pdf"
	sheet := "card-exports/CMD-77/IWASP_Fiche_CMD-77.pdf"
	for _, key := range []string{card, sheet} {
		if !bytes.HasPrefix(store.uploaded[key], []byte("%PDF-")) {
			t.Fatalf("missing upload %q", key)
		}
	}

	var exp database.Export
	if err := db.Where("design_id = ?", row.ID).First(&exp).Error; err != nil {
		t.Fatalf("load export: %v", err)
	}
	if exp.Status != database.ExportCompleted || exp.CardKey != card || exp.InfoSheetKey != sheet {
		t.Fatalf("unexpected export row: %+v", exp)
	}
	var manifest export.Manifest
	if err := json.Unmarshal(exp.Manifest, &manifest); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if manifest.PageWidthMM != 85.6 || manifest.Quantity != 50 {
		t.Fatalf("unexpected manifest: %+v", manifest)
	}

	if len(pub.messages) != 1 || pub.channels[0] != "session_notify:sess-1" {
		t.Fatalf("unexpected notifications: %v %+v", pub.channels, pub.messages)
	}
	if msg := pub.messages[0]; msg.Status != "completed" || !msg.Delivered || msg.CorrelationID != "corr-1" {
		t.Fatalf("unexpected notify: %+v", msg)
	}
}

func TestExportTaskRollsBackHalfPack(t *testing.T) {
	db := newTestDB(t)
	row := seedDesign(t, db, true)
	store := newFakeStorage()
	store.failOn = "_Fiche_"
	pub := &fakePublisher{}
	h := NewExportTaskHandler(db, store, pub, newTestPipeline(t), slog.Default())

	if err := h.ProcessTask(context.Background(), exportTask(t, row.ID)); err == nil {
		t.Fatalf("expected upload failure")
	}
	if len(store.uploaded) != 0 {
		t.Fatalf("half pack left in storage: %v", store.uploaded)
	}
	if len(store.deleted) != 1 || !strings.Contains(store.deleted[0], "_Carte_") {
		t.Fatalf("card pdf not rolled back: %v", store.deleted)
	}
	if len(pub.messages) != 1 || pub.messages[0].Delivered || pub.messages[0].Status != "error" {
		t.Fatalf("unexpected notifications: %+v", pub.messages)
	}
}

func TestExportTaskDraftDesign(t *testing.T) {
	db := newTestDB(t)
	row := seedDesign(t, db, false)
	store := newFakeStorage()
	pub := &fakePublisher{}
	h := NewExportTaskHandler(db, store, pub, newTestPipeline(t), slog.Default())

	err := h.ProcessTask(context.Background(), exportTask(t, row.ID))
	if !errors.Is(err, design.ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked, got %v", err)
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("draft designs must not be retried: %v", err)
	}
	if len(store.uploaded) != 0 {
		t.Fatalf("nothing should be uploaded for a draft")
	}
	var exp database.Export
	if err := db.Where("design_id = ?", row.ID).First(&exp).Error; err != nil {
		t.Fatalf("load export: %v", err)
	}
	if exp.Status != database.ExportFailed || exp.ErrorCode != errcode.NotLocked {
		t.Fatalf("unexpected export row: %+v", exp)
	}
	if pub.messages[0].ErrorCode != errcode.NotLocked {
		t.Fatalf("unexpected notify: %+v", pub.messages[0])
	}
}

func TestExportTaskMapsRasterFailure(t *testing.T) {
	db := newTestDB(t)
	row := seedDesign(t, db, true)
	pub := &fakePublisher{}
	failure := failingPipeline{err: errors.Join(export.ErrRasterizationFailed, errors.New("out of memory"))}
	h := NewExportTaskHandler(db, newFakeStorage(), pub, failure, slog.Default())

	if err := h.ProcessTask(context.Background(), exportTask(t, row.ID)); err == nil {
		t.Fatalf("expected failure")
	}
	msg := pub.messages[0]
	if msg.ErrorCode != errcode.RasterizationFailed || msg.Delivered {
		t.Fatalf("unexpected notify: %+v", msg)
	}
	if strings.Contains(msg.ErrorMessage, "out of memory") {
		t.Fatalf("internal error leaked to user: %q", msg.ErrorMessage)
	}
}

func TestExportTaskMissingLogoIsPermanent(t *testing.T) {
	db := newTestDB(t)
	row := seedDesign(t, db, true)
	pub := &fakePublisher{}
	gone := fmt.Errorf("%w: %w", export.ErrRasterizationFailed,
		fmt.Errorf("%w: logo.png: %w", raster.ErrAssetMissing, storage.ErrObjectNotFound))
	h := NewExportTaskHandler(db, newFakeStorage(), pub, failingPipeline{err: gone}, slog.Default())

	ctx := context.Background()
	err := h.ProcessTask(ctx, exportTask(t, row.ID))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if len(pub.messages) != 1 || pub.messages[0].ErrorCode != errcode.RasterizationFailed {
		t.Fatalf("unexpected notifications: %+v", pub.messages)
	}
}

func TestExportTaskFailsQueuedExportWhenDesignMissing(t *testing.T) {
	db := newTestDB(t)
	exp := database.Export{DesignID: 999, OrderNumber: "CMD-77", Quantity: 50, Status: database.ExportQueued}
	if err := db.Create(&exp).Error; err != nil {
		t.Fatalf("seed export: %v", err)
	}
	pub := &fakePublisher{}
	h := NewExportTaskHandler(db, newFakeStorage(), pub, failingPipeline{}, slog.Default())

	task, err := tasks.NewCardExportTask(tasks.CardExportPayload{
		DesignID: 999, ExportID: exp.ID, OrderNumber: "CMD-77", Quantity: 50,
		CorrelationID: "corr-9", SessionID: "sess-gone",
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	err = h.ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	var got database.Export
	if err := db.First(&got, exp.ID).Error; err != nil {
		t.Fatalf("reload export: %v", err)
	}
	if got.Status != database.ExportFailed || got.ErrorCode != errcode.ResourceMissing {
		t.Fatalf("expected failed/%d, got %s/%d", errcode.ResourceMissing, got.Status, got.ErrorCode)
	}
	if len(pub.messages) != 1 || pub.channels[0] != NotifyChannel("sess-gone") {
		t.Fatalf("expected one notification on the session channel, got %v", pub.channels)
	}
	msg := pub.messages[0]
	if msg.Status != "error" || msg.Delivered || msg.ErrorCode != errcode.ResourceMissing || msg.ExportID != exp.ID {
		t.Fatalf("unexpected notification %+v", msg)
	}
}

func TestExportTaskMissingDesignWithoutSessionOnlyLogs(t *testing.T) {
	db := newTestDB(t)
	pub := &fakePublisher{}
	h := NewExportTaskHandler(db, newFakeStorage(), pub, failingPipeline{}, slog.Default())

	err := h.ProcessTask(context.Background(), exportTask(t, 999))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no notification without a session, got %d", len(pub.messages))
	}
}

func TestThumbnailTask(t *testing.T) {
	rz, err := raster.New(nil)
	if err != nil {
		t.Fatalf("rasterizer: %v", err)
	}
	r, err := render.NewRenderer(428, rz.Fonts)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	store := newFakeStorage()
	h := NewThumbnailTaskHandler(store, r, rz, slog.Default())

	task, err := tasks.NewCatalogThumbnailsTask(tasks.CatalogThumbnailsPayload{TemplateIDs: []string{"iwasp-pure"}})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	data := store.uploaded[ThumbnailKey("iwasp-pure")]
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatalf("thumbnail not uploaded as png")
	}
}
