package entity_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"docsync/internal/common/errs"
	"docsync/internal/features/entity"
	"docsync/internal/features/entity/entitytest"
	"docsync/pkg/fixer"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUpsertTracksDirtyFields(t *testing.T) {
	repo := entitytest.NewMemoryRepository()
	svc := entity.NewEntityService(repo)
	ctx := context.Background()

	e, changed, err := svc.Upsert(ctx, "product", 1, map[string]any{"name": "Widget", "qty": int32(5)}, true)
	if err != nil || !changed || !e.Dirty {
		t.Fatalf("create: %+v changed=%v err=%v", e, changed, err)
	}

	repo.SetState(ctx, "product", []int64{1}, entity.StateUpdate{Result: entity.ResultIndexed, Document: fixer.Document{"id": 1}})
	if repo.Must("product", 1).Dirty {
		t.Fatal("storing the submitted document should clear dirty")
	}

	_, changed, _ = svc.Upsert(ctx, "product", 1, map[string]any{"qty": 5.0}, true)
	if changed || repo.Must("product", 1).Dirty {
		t.Error("same value with a different numeric type must not mark dirty")
	}

	_, changed, _ = svc.Upsert(ctx, "product", 1, map[string]any{"qty": 6}, true)
	stored := repo.Must("product", 1)
	if !changed || !stored.Dirty {
		t.Error("changed field should mark dirty")
	}
	if stored.Fields["name"] != "Widget" {
		t.Error("fields not in the update must be kept")
	}
}

func TestUpsertWithoutDirtyMark(t *testing.T) {
	repo := entitytest.NewMemoryRepository()
	svc := entity.NewEntityService(repo)

	e, _, err := svc.Upsert(context.Background(), "product", 3, map[string]any{"name": "Synced"}, false)
	if err != nil || e.Dirty {
		t.Errorf("import should leave the entity clean: %+v %v", e, err)
	}
	if _, _, err := svc.Upsert(context.Background(), "product", 0, nil, false); !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid for id 0, got %v", err)
	}
}

func TestGetMissingEntity(t *testing.T) {
	svc := entity.NewEntityService(entitytest.NewMemoryRepository())
	if _, err := svc.Get(context.Background(), "product", 9); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestStateUpdateApply(t *testing.T) {
	task := primitive.NewObjectID()
	now := time.Now()
	e := &entity.Entity{EntityID: 1, Dirty: true}

	entity.StateUpdate{Result: entity.ResultQueued, Date: &now, TaskID: &task, Document: fixer.Document{"id": 1}}.Apply(e)
	if e.IndexResult != entity.ResultQueued || e.TaskID == nil || *e.TaskID != task || e.Dirty || e.IndexDocument == nil {
		t.Fatalf("queued update not applied: %+v", e)
	}

	entity.StateUpdate{Result: entity.ResultIndexed}.Apply(e)
	if e.TaskID == nil || e.IndexDate == nil {
		t.Error("unset optional fields must be left untouched")
	}

	entity.StateUpdate{Clear: true}.Apply(e)
	if e.IndexResult != entity.ResultNone || e.TaskID != nil || e.IndexDate != nil || e.IndexDocument != nil {
		t.Errorf("clear left state behind: %+v", e)
	}
}

func TestValuesDefaultsID(t *testing.T) {
	e := &entity.Entity{EntityID: 42, Fields: map[string]any{"name": "x"}}
	if v := e.Values(); v["id"] != int64(42) || v["name"] != "x" {
		t.Errorf("Values() = %v", v)
	}
	e.Fields["id"] = "custom"
	if v := e.Values(); v["id"] != "custom" {
		t.Errorf("explicit id field should win, got %v", v["id"])
	}
}

func TestExportWorkbook(t *testing.T) {
	repo := entitytest.NewMemoryRepository()
	svc := entity.NewEntityService(repo)
	ctx := context.Background()

	svc.Upsert(ctx, "product", 2, map[string]any{"name": "Gadget"}, true)
	svc.Upsert(ctx, "product", 1, map[string]any{"name": "Widget", "code": "W"}, true)
	repo.SetState(ctx, "product", []int64{1}, entity.StateUpdate{Result: entity.ResultIndexed})

	data, filename, err := svc.Export(ctx, "product")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("expected an xlsx (zip) payload")
	}
	if len(filename) == 0 {
		t.Error("missing filename")
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sync")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	if rows[0][0] != "entity_id" || rows[0][len(rows[0])-1] != "name" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "1" || rows[1][1] != "indexed" {
		t.Errorf("unexpected first row %v", rows[1])
	}
}
