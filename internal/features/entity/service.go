package entity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"docsync/internal/common/errs"
	"docsync/pkg/fixer"

	"github.com/xuri/excelize/v2"
)

type EntityService interface {
	// Upsert merges fields into the entity, creating it when missing. With
	// markDirty set, a change to any field flags the entity for the next sync.
	Upsert(ctx context.Context, entityType string, entityID int64, fields map[string]any, markDirty bool) (*Entity, bool, error)
	Get(ctx context.Context, entityType string, entityID int64) (*Entity, error)
	List(ctx context.Context, filter ListFilter) ([]Entity, error)
	Export(ctx context.Context, entityType string) ([]byte, string, error)
}

type EntityServiceImpl struct {
	Repo EntityRepository
}

func NewEntityService(repo EntityRepository) EntityService {
	return &EntityServiceImpl{Repo: repo}
}

func (s *EntityServiceImpl) Upsert(ctx context.Context, entityType string, entityID int64, fields map[string]any, markDirty bool) (*Entity, bool, error) {
	if entityType == "" || entityID <= 0 {
		return nil, false, errs.New(errs.Invalid, "entity type and a positive id are required")
	}

	e, err := s.Repo.Get(ctx, entityType, entityID)
	if err != nil {
		return nil, false, err
	}

	changed := false
	if e == nil {
		e = &Entity{EntityType: entityType, EntityID: entityID, Fields: map[string]any{}}
		changed = true
	}
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	for k, v := range fields {
		old, ok := e.Fields[k]
		if !ok || !sameValue(old, v) {
			e.Fields[k] = v
			changed = true
		}
	}
	if !changed {
		return e, false, nil
	}

	if markDirty {
		e.Dirty = true
	}
	if err := s.Repo.Save(ctx, e); err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (s *EntityServiceImpl) Get(ctx context.Context, entityType string, entityID int64) (*Entity, error) {
	e, err := s.Repo.Get(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errs.New(errs.NotFound, "%s %d not found", entityType, entityID)
	}
	return e, nil
}

func (s *EntityServiceImpl) List(ctx context.Context, filter ListFilter) ([]Entity, error) {
	return s.Repo.List(ctx, filter)
}

var exportColumns = []string{"entity_id", "index_result", "index_date", "index_response", "dirty", "pending_delete", "task_id"}

// Export renders the sync state of every entity of a type as a workbook.
func (s *EntityServiceImpl) Export(ctx context.Context, entityType string) ([]byte, string, error) {
	entities, err := s.Repo.ListByType(ctx, entityType)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Sync"
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, "", err
	}

	fieldSet := map[string]bool{}
	for _, e := range entities {
		for k := range e.Fields {
			fieldSet[k] = true
		}
	}
	fieldCols := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fieldCols = append(fieldCols, k)
	}
	sort.Strings(fieldCols)
	columns := append(append([]string{}, exportColumns...), fieldCols...)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, e := range entities {
		row := []any{e.EntityID, string(e.IndexResult), "", e.IndexResponse, e.Dirty, e.PendingDelete, ""}
		if e.IndexDate != nil {
			row[2] = e.IndexDate.UTC().Format(time.DateTime)
		}
		if e.TaskID != nil {
			row[6] = e.TaskID.Hex()
		}
		for _, k := range fieldCols {
			row = append(row, cellValue(e.Fields[k]))
		}

		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, "", err
		}
	}

	for i := range columns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, 15)
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buffer.Bytes(), fmt.Sprintf("%s_sync_%s.xlsx", entityType, time.Now().Format("20060102")), nil
}

func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case string, bool, int, int32, int64, float64, time.Time:
		return x
	}
	return fmt.Sprintf("%v", v)
}

func sameValue(a, b any) bool {
	return fixer.Equal(fixer.Document{"v": a}, fixer.Document{"v": b})
}
