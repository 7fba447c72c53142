package remote

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"docsync/internal/common/errs"
	"docsync/pkg/fixer"

	_ "modernc.org/sqlite"
)

var artikel = Collection{Name: "PPG_Artikel", PrimaryKey: "Artikelid"}

func newKardex(t *testing.T) *SQLTableClient {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "kardex.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE PPG_Artikel (
		Artikelid INTEGER PRIMARY KEY,
		Artikelbezeichnung TEXT,
		STATUS INTEGER,
		Info1 TEXT
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return NewSQLTableClient(db, DialectSQLite, 5*time.Second)
}

func TestSQLTableInsertThenUpdate(t *testing.T) {
	c := newKardex(t)
	ctx := context.Background()

	h, err := c.SubmitBatch(ctx, artikel, OpAddOrUpdate, []fixer.Document{
		{"Artikelid": int64(1), "Artikelbezeichnung": "Schraube", "STATUS": 1, "Info1": ""},
		{"Artikelid": int64(2), "Artikelbezeichnung": "Mutter", "STATUS": 1, "Info1": ""},
	})
	if err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	if h.Status != StatusSucceeded {
		t.Errorf("SQL writes are synchronous, got %s", h.Status)
	}
	if status, detail, err := c.GetOperationStatus(ctx, h.UID); err != nil || status != StatusSucceeded || detail != "2 inserted, 0 updated" {
		t.Errorf("GetOperationStatus() = %s %q %v", status, detail, err)
	}

	_, err = c.SubmitBatch(ctx, artikel, OpAddOrUpdate, []fixer.Document{
		{"Artikelid": int64(2), "Artikelbezeichnung": "Mutter M4", "STATUS": 2, "Info1": ""},
	})
	if err != nil {
		t.Fatalf("second SubmitBatch() error = %v", err)
	}

	found, err := c.FetchByIDs(ctx, artikel, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("FetchByIDs() error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected two rows, got %v", found)
	}
	if found[2]["Artikelbezeichnung"] != "Mutter M4" {
		t.Errorf("row 2 not updated: %v", found[2])
	}
}

func TestSQLTableValuesAreBound(t *testing.T) {
	c := newKardex(t)
	ctx := context.Background()
	name := "O'Brien'); DROP TABLE PPG_Artikel; --"

	if _, err := c.SubmitBatch(ctx, artikel, OpAddOrUpdate, []fixer.Document{{"Artikelid": int64(5), "Artikelbezeichnung": name}}); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}

	row, err := c.SelectOne(ctx, "SELECT Artikelid, Artikelbezeichnung FROM PPG_Artikel WHERE Artikelid = ?", 5)
	if err != nil {
		t.Fatalf("SelectOne() error = %v", err)
	}
	if row == nil || row["Artikelbezeichnung"] != name {
		t.Errorf("value was not stored verbatim: %v", row)
	}

	missing, err := c.SelectOne(ctx, "SELECT Artikelid FROM PPG_Artikel WHERE Artikelid = ?", 99)
	if err != nil || missing != nil {
		t.Errorf("SelectOne() for a missing row = %v, %v", missing, err)
	}
}

func TestSQLTableRejectsBadIdentifiers(t *testing.T) {
	c := newKardex(t)
	ctx := context.Background()

	_, err := c.SubmitBatch(ctx, Collection{Name: "PPG_Artikel; DROP", PrimaryKey: "Artikelid"}, OpAddOrUpdate, nil)
	if !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid for a bad table name, got %v", err)
	}

	_, err = c.SubmitBatch(ctx, artikel, OpAddOrUpdate, []fixer.Document{{"Artikelid": int64(1), "bad col": "x"}})
	if !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid for a bad column, got %v", err)
	}
}

func TestSQLTableRejectedStatement(t *testing.T) {
	c := newKardex(t)
	_, err := c.SubmitBatch(context.Background(), artikel, OpAddOrUpdate, []fixer.Document{{"Artikelid": int64(1), "NoSuchColumn": "x"}})
	if !errs.Is(err, errs.RemoteRejected) {
		t.Fatalf("expected RemoteRejected, got %v", err)
	}
}

func TestSQLTableDeleteAndReadRows(t *testing.T) {
	c := newKardex(t)
	ctx := context.Background()

	var docs []fixer.Document
	for id := int64(1); id <= 5; id++ {
		docs = append(docs, fixer.Document{"Artikelid": id, "Artikelbezeichnung": "item"})
	}
	if _, err := c.SubmitBatch(ctx, artikel, OpAddOrUpdate, docs); err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}

	if _, err := c.DeleteBatch(ctx, artikel, []int64{2, 4}); err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}

	rows, err := c.ReadRows(ctx, artikel, 2)
	if err != nil {
		t.Fatalf("ReadRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(rows))
	}
	for i, want := range []int64{1, 3} {
		if id, _ := DocumentID(rows[i], "Artikelid"); id != want {
			t.Errorf("row %d id = %d, want %d", i, id, want)
		}
	}
}

func TestDialectQuoting(t *testing.T) {
	tests := []struct {
		d     Dialect
		ident string
		want  string
	}{
		{DialectSQLServer, "dbo.PPG_Artikel", "[dbo].[PPG_Artikel]"},
		{DialectPostgres, "Artikelid", `"Artikelid"`},
		{DialectSQLite, "Info1", `"Info1"`},
	}
	for _, tt := range tests {
		got, err := tt.d.quote(tt.ident)
		if err != nil || got != tt.want {
			t.Errorf("%s.quote(%q) = %q, %v; want %q", tt.d, tt.ident, got, err, tt.want)
		}
	}
	if DialectSQLServer.placeholder(3) != "@p3" || DialectPostgres.placeholder(3) != "$3" {
		t.Error("unexpected placeholder style")
	}
}
