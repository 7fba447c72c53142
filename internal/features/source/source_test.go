package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"
	"docsync/internal/features/audit"
	"docsync/internal/features/definition"
	"docsync/internal/features/entity"
	"docsync/internal/features/entity/entitytest"
	"docsync/internal/features/remote"
	"docsync/internal/features/remote/remotetest"
	"docsync/pkg/fixer"

	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"
)

type MockDefinitions map[string]*definition.Definition

func (m MockDefinitions) Resolve(ctx context.Context, entityType string) (*definition.Definition, error) {
	if def, ok := m[entityType]; ok {
		return def, nil
	}
	return nil, errs.New(errs.NoIndexConfigured, "no index configured for %s", entityType)
}

type MockAuditService struct {
	actions []common_models.AuditAction
}

func (m *MockAuditService) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	m.actions = append(m.actions, action)
	return nil
}

func (m *MockAuditService) ListLogs(ctx context.Context, filter audit.Filter, page, limit int64) (*audit.Page, error) {
	return nil, nil
}

type fakeOdoo struct {
	records []map[string]any
	pages   []int
	fields  []string
}

func (f *fakeOdoo) SearchRead(ctx context.Context, model string, fields []string, offset, limit int) ([]map[string]any, error) {
	f.pages = append(f.pages, offset)
	f.fields = fields
	if offset >= len(f.records) {
		return nil, nil
	}
	end := min(offset+limit, len(f.records))
	return f.records[offset:end], nil
}

func newService(t *testing.T, defs MockDefinitions, remotes remote.Resolver) (*SourceServiceImpl, *entitytest.MemoryRepository) {
	t.Helper()
	repo := entitytest.NewMemoryRepository()
	return &SourceServiceImpl{
		Definitions:  defs,
		Entities:     entity.NewEntityService(repo),
		States:       repo,
		Remotes:      remotes,
		AuditService: &MockAuditService{},
		Logger:       zaptest.NewLogger(t),
		PageSize:     2,
	}, repo
}

func productDefinition() *definition.Definition {
	return &definition.Definition{
		Name:       "products",
		EntityType: "product",
		Remote:     remote.KindMeilisearch,
		Collection: "products",
		PrimaryKey: "id",
		FieldMap:   fixer.FieldMap{"id": "id", "name": "name", "categ_id": "category"},
		Settings:   map[string]any{"odoo_model": "product.template"},
		Enabled:    true,
	}
}

func TestPullOdoo(t *testing.T) {
	svc, repo := newService(t, MockDefinitions{"product": productDefinition()}, nil)
	odoo := &fakeOdoo{records: []map[string]any{
		{"id": int64(1), "name": "Widget", "categ_id": []any{int64(4), "Tools"}},
		{"id": int64(2), "name": "Gadget", "categ_id": false},
		{"id": int64(3), "name": "Gizmo", "categ_id": []any{int64(4), "Tools"}},
	}}
	svc.Odoo = odoo
	repo.Seed(
		entity.Entity{EntityType: "product", EntityID: 1, Fields: map[string]any{"name": "Widget", "categ_id": int64(4)}},
		entity.Entity{EntityType: "product", EntityID: 2, Fields: map[string]any{"name": "Old name"}},
	)

	res, err := svc.PullOdoo(context.Background(), "product", "")
	if err != nil {
		t.Fatalf("PullOdoo() error = %v", err)
	}
	if res.Read != 3 || res.Created != 1 || res.Changed != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if !reflect.DeepEqual(odoo.pages, []int{0, 2}) {
		t.Errorf("pages = %v", odoo.pages)
	}
	if !reflect.DeepEqual(odoo.fields, []string{"id", "categ_id", "name"}) {
		t.Errorf("fields = %v", odoo.fields)
	}

	if e := repo.Must("product", 1); e.Dirty {
		t.Error("unchanged entity must not be flagged")
	}
	if e := repo.Must("product", 2); !e.Dirty || e.Fields["name"] != "Gadget" {
		t.Errorf("changed entity = %+v", e)
	}
	if e := repo.Must("product", 3); !e.Dirty || e.Fields["categ_id"] != int64(4) {
		t.Errorf("created entity = %+v", e)
	}
}

func TestPullOdooRequiresClientAndModel(t *testing.T) {
	def := productDefinition()
	def.Settings = nil
	svc, _ := newService(t, MockDefinitions{"product": def}, nil)
	ctx := context.Background()

	if _, err := svc.PullOdoo(ctx, "product", "product.template"); !errs.Is(err, errs.RemoteUnavailable) {
		t.Errorf("expected RemoteUnavailable without a client, got %v", err)
	}

	svc.Odoo = &fakeOdoo{}
	if _, err := svc.PullOdoo(ctx, "product", ""); !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid without a model, got %v", err)
	}
	if _, err := svc.PullOdoo(ctx, "country", "res.country"); !errs.Is(err, errs.NoIndexConfigured) {
		t.Errorf("expected NoIndexConfigured, got %v", err)
	}
}

func TestPullRemoteFromSQLTable(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "kardex.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for _, stmt := range []string{
		`CREATE TABLE PPG_Artikel (Artikelid INTEGER PRIMARY KEY, Artikelbezeichnung TEXT)`,
		`INSERT INTO PPG_Artikel VALUES (1, 'Schraube'), (2, 'Mutter')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed table: %v", err)
		}
	}

	kardex := remote.NewSQLTableClient(db, remote.DialectSQLite, time.Second)
	registry := remote.NewStaticRegistry(map[remote.Kind]remote.Client{remote.KindSQLTable: kardex})
	def := &definition.Definition{
		Name:       "kardex",
		EntityType: "product",
		Remote:     remote.KindSQLTable,
		Collection: "PPG_Artikel",
		PrimaryKey: "id",
		FieldMap:   fixer.FieldMap{"id": "Artikelid", "name": "Artikelbezeichnung"},
		Enabled:    true,
	}
	svc, repo := newService(t, MockDefinitions{"product": def}, registry)
	repo.Seed(entity.Entity{EntityType: "product", EntityID: 2, Fields: map[string]any{"name": "Mutter alt"}, Dirty: true})

	res, err := svc.PullRemote(context.Background(), "product", 0)
	if err != nil {
		t.Fatalf("PullRemote() error = %v", err)
	}
	if res.Read != 2 || res.Created != 1 || res.Changed != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	for id, name := range map[int64]string{1: "Schraube", 2: "Mutter"} {
		e := repo.Must("product", id)
		if e.Fields["name"] != name {
			t.Errorf("entity %d name = %v", id, e.Fields["name"])
		}
		if e.IndexResult != entity.ResultIndexed || e.Dirty {
			t.Errorf("pulled entity %d should be in sync: %+v", id, e)
		}
		if _, ok := e.Fields["id"]; ok {
			t.Errorf("entity %d stores its id as a field", id)
		}
		want := fixer.Document{"Artikelid": id, "Artikelbezeichnung": name}
		if !fixer.Equal(e.IndexDocument, want) {
			t.Errorf("entity %d document = %v", id, e.IndexDocument)
		}
	}
}

func TestPullRemoteNeedsRowReader(t *testing.T) {
	registry := remote.NewStaticRegistry(map[remote.Kind]remote.Client{remote.KindMeilisearch: remotetest.NewFakeClient()})
	svc, _ := newService(t, MockDefinitions{"product": productDefinition()}, registry)

	if _, err := svc.PullRemote(context.Background(), "product", 10); !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

func TestOdooValue(t *testing.T) {
	tests := []struct {
		in, want any
	}{
		{[]any{int64(3), "Belgium"}, int64(3)},
		{[]any{int64(1), int64(2)}, []any{int64(1), int64(2)}},
		{"plain", "plain"},
		{false, false},
	}
	for _, tt := range tests {
		if got := odooValue(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("odooValue(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
