package definition

import (
	"context"
	"testing"
	"time"

	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"
	"docsync/internal/features/audit"
	"docsync/internal/features/remote"
	"docsync/internal/features/remote/remotetest"
	"docsync/pkg/fixer"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MockDefinitionRepo struct {
	defs map[primitive.ObjectID]*Definition
}

func newMockRepo() *MockDefinitionRepo {
	return &MockDefinitionRepo{defs: make(map[primitive.ObjectID]*Definition)}
}

func (m *MockDefinitionRepo) Create(ctx context.Context, def *Definition) error {
	def.ID = primitive.NewObjectID()
	cp := *def
	m.defs[def.ID] = &cp
	return nil
}

func (m *MockDefinitionRepo) GetByID(ctx context.Context, id string) (*Definition, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	if def, ok := m.defs[oid]; ok {
		cp := *def
		return &cp, nil
	}
	return nil, nil
}

func (m *MockDefinitionRepo) List(ctx context.Context) ([]Definition, error) {
	return m.ListEnabled(ctx, "*")
}

func (m *MockDefinitionRepo) ListEnabled(ctx context.Context, entityType string) ([]Definition, error) {
	out := []Definition{}
	for _, def := range m.defs {
		if entityType == "*" || (def.Enabled && (entityType == "" || def.EntityType == entityType)) {
			out = append(out, *def)
		}
	}
	return out, nil
}

func (m *MockDefinitionRepo) Update(ctx context.Context, def *Definition) error {
	cp := *def
	m.defs[def.ID] = &cp
	return nil
}

func (m *MockDefinitionRepo) Delete(ctx context.Context, id string) error {
	oid, _ := primitive.ObjectIDFromHex(id)
	delete(m.defs, oid)
	return nil
}

func (m *MockDefinitionRepo) EnsureIndexes(ctx context.Context) error { return nil }

type MockAuditService struct {
	Actions []common_models.AuditAction
}

func (m *MockAuditService) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	m.Actions = append(m.Actions, action)
	return nil
}

func (m *MockAuditService) ListLogs(ctx context.Context, filter audit.Filter, page, limit int64) (*audit.Page, error) {
	return nil, nil
}

func newService(scope string, remotes remote.Resolver) (*DefinitionServiceImpl, *MockAuditService) {
	audit := &MockAuditService{}
	return &DefinitionServiceImpl{Repo: newMockRepo(), AuditService: audit, Remotes: remotes, Scope: scope}, audit
}

func productDefinition(scope string) *Definition {
	return &Definition{
		EntityType: "product",
		Remote:     remote.KindMeilisearch,
		FieldMap:   fixer.FieldMap{"id": "id", "name": "name"},
		Scope:      scope,
		Enabled:    true,
	}
}

func TestNormalizeDefaults(t *testing.T) {
	def := &Definition{EntityType: "Product Template"}
	def.Normalize()
	if def.PrimaryKey != "id" || def.Collection != "product_template" || def.Name != "Product Template" {
		t.Errorf("unexpected defaults %+v", def)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
		kind errs.Kind
	}{
		{"ok", Definition{EntityType: "product", Remote: remote.KindMeilisearch, Collection: "products", PrimaryKey: "id", FieldMap: fixer.FieldMap{"id": "id"}}, ""},
		{"preset", Definition{EntityType: "product", Remote: remote.KindSQLTable, Collection: "PPG_Artikel", PrimaryKey: "id", Preset: "kardex_product"}, ""},
		{"unknown remote", Definition{EntityType: "product", Remote: "ftp", Collection: "x", PrimaryKey: "id", FieldMap: fixer.FieldMap{"id": "id"}}, errs.Invalid},
		{"no map", Definition{EntityType: "product", Remote: remote.KindMongo, Collection: "x", PrimaryKey: "id"}, errs.Invalid},
		{"unmapped key", Definition{EntityType: "product", Remote: remote.KindMongo, Collection: "x", PrimaryKey: "id", FieldMap: fixer.FieldMap{"name": "name"}}, errs.Invalid},
		{"bad filter", Definition{EntityType: "product", Remote: remote.KindMongo, Collection: "x", PrimaryKey: "id", FieldMap: fixer.FieldMap{"id": "id"}, Filter: "record.active &&"}, errs.Invalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.kind == "" && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.kind != "" && !errs.Is(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestRemoteCollectionUsesMappedKey(t *testing.T) {
	def := &Definition{EntityType: "product", Collection: "PPG_Artikel", PrimaryKey: "id", Preset: "kardex_product"}
	coll, err := def.RemoteCollection()
	if err != nil {
		t.Fatalf("RemoteCollection() error = %v", err)
	}
	if coll.Name != "PPG_Artikel" || coll.PrimaryKey != "Artikelid" {
		t.Errorf("unexpected collection %+v", coll)
	}
}

func TestFilterMatch(t *testing.T) {
	f, err := CompileFilter(`record.active && record.list_price > 10`)
	if err != nil {
		t.Fatalf("CompileFilter() error = %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		record map[string]any
		want   bool
	}{
		{map[string]any{"active": true, "list_price": 12.5}, true},
		{map[string]any{"active": true, "list_price": int32(11)}, true},
		{map[string]any{"active": false, "list_price": 99.0}, false},
		{map[string]any{"list_price": 99.0}, false},
	}
	for _, tt := range tests {
		got, err := f.Match(ctx, tt.record)
		if err != nil {
			t.Fatalf("Match(%v) error = %v", tt.record, err)
		}
		if got != tt.want {
			t.Errorf("Match(%v) = %v, want %v", tt.record, got, tt.want)
		}
	}
}

func TestFilterHandlesStoreTypes(t *testing.T) {
	f, err := CompileFilter(`record.tags[0] == "x" && record.meta.kind == "a" && record.owner != ""`)
	if err != nil {
		t.Fatalf("CompileFilter() error = %v", err)
	}
	ok, err := f.Match(context.Background(), map[string]any{
		"tags":    primitive.A{"x"},
		"meta":    primitive.M{"kind": "a"},
		"owner":   primitive.NewObjectID(),
		"created": primitive.NewDateTimeFromTime(time.Now()),
	})
	if err != nil || !ok {
		t.Errorf("Match() = %v, %v", ok, err)
	}
}

func TestEmptyFilterSelectsEverything(t *testing.T) {
	f, err := CompileFilter("")
	if err != nil || f != nil {
		t.Fatalf("CompileFilter(\"\") = %v, %v", f, err)
	}
	if ok, _ := f.Match(context.Background(), nil); !ok {
		t.Error("nil filter should match")
	}
}

func TestCreateRejectsOverlappingDefinitions(t *testing.T) {
	svc, audit := newService("shop", nil)
	ctx := context.Background()

	if err := svc.CreateDefinition(ctx, productDefinition("shop")); err != nil {
		t.Fatalf("CreateDefinition() error = %v", err)
	}
	if err := svc.CreateDefinition(ctx, productDefinition("")); !errs.Is(err, errs.Conflict) {
		t.Errorf("unscoped duplicate: expected Conflict, got %v", err)
	}
	if err := svc.CreateDefinition(ctx, productDefinition("shop")); !errs.Is(err, errs.Conflict) {
		t.Errorf("same scope: expected Conflict, got %v", err)
	}
	if err := svc.CreateDefinition(ctx, productDefinition("warehouse")); err != nil {
		t.Errorf("other scope should be accepted, got %v", err)
	}

	disabled := productDefinition("shop")
	disabled.Enabled = false
	if err := svc.CreateDefinition(ctx, disabled); err != nil {
		t.Errorf("disabled duplicate should be accepted, got %v", err)
	}
	if len(audit.Actions) != 3 {
		t.Errorf("expected three audit entries, got %v", audit.Actions)
	}
}

func TestUpdateKeepsIdentityAndChecksConflicts(t *testing.T) {
	svc, _ := newService("shop", nil)
	ctx := context.Background()

	first := productDefinition("shop")
	svc.CreateDefinition(ctx, first)

	second := productDefinition("shop")
	second.Enabled = false
	svc.CreateDefinition(ctx, second)

	update := productDefinition("shop")
	update.Filter = "record.active"
	if err := svc.UpdateDefinition(ctx, first.ID.Hex(), update); err != nil {
		t.Fatalf("updating a definition must not conflict with itself: %v", err)
	}
	if update.ID != first.ID {
		t.Error("update changed the id")
	}

	enable := productDefinition("shop")
	if err := svc.UpdateDefinition(ctx, second.ID.Hex(), enable); !errs.Is(err, errs.Conflict) {
		t.Errorf("enabling an overlapping definition: expected Conflict, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	svc, _ := newService("shop", nil)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, "product"); !errs.Is(err, errs.NoIndexConfigured) {
		t.Fatalf("expected NoIndexConfigured, got %v", err)
	}

	svc.CreateDefinition(ctx, productDefinition("warehouse"))
	if _, err := svc.Resolve(ctx, "product"); !errs.Is(err, errs.NoIndexConfigured) {
		t.Fatalf("definition of another scope must not resolve, got %v", err)
	}

	svc.CreateDefinition(ctx, productDefinition("shop"))
	def, err := svc.Resolve(ctx, "product")
	if err != nil || def.Scope != "shop" {
		t.Fatalf("Resolve() = %+v, %v", def, err)
	}

	types, _ := svc.EntityTypes(ctx)
	if len(types) != 1 || types[0] != "product" {
		t.Errorf("EntityTypes() = %v", types)
	}
}

func TestGetDefinitionNotFound(t *testing.T) {
	svc, _ := newService("", nil)
	if _, err := svc.GetDefinition(context.Background(), primitive.NewObjectID().Hex()); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, err := svc.GetDefinition(context.Background(), "nope"); !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

func TestCollectionManagementNeedsCapableRemote(t *testing.T) {
	fake := remotetest.NewFakeClient()
	svc, _ := newService("", remote.NewStaticRegistry(map[remote.Kind]remote.Client{remote.KindMeilisearch: fake}))
	ctx := context.Background()

	def := productDefinition("")
	svc.CreateDefinition(ctx, def)

	if _, err := svc.CreateCollection(ctx, def.ID.Hex()); !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid for a remote without collection management, got %v", err)
	}
	if err := svc.RemoteHealth(ctx, remote.KindMeilisearch); !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid for a remote without health check, got %v", err)
	}
	if err := svc.RemoteHealth(ctx, remote.KindMongo); !errs.Is(err, errs.RemoteUnavailable) {
		t.Errorf("expected RemoteUnavailable, got %v", err)
	}
}
