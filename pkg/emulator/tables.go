package emulator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tabell-io/tabell-go/pkg/errs"
	"github.com/tabell-io/tabell-go/pkg/rowcodec"
	"github.com/tabell-io/tabell-go/pkg/schema"
	"github.com/tabell-io/tabell-go/pkg/transport"
)

// Wire shapes of the enveloped contract generation.

type columnOut struct {
	ID           int64  `json:"id"`
	ColumnName   string `json:"columnName"`
	DataType     int    `json:"dataType"`
	IsRequired   bool   `json:"isRequired"`
	DisplayOrder int    `json:"displayOrder"`
	DefaultValue string `json:"defaultValue"`
}

type tableOut struct {
	ID          int64       `json:"id"`
	TableName   string      `json:"tableName"`
	Description string      `json:"description"`
	UserID      int64       `json:"userId"`
	CreatedAt   string      `json:"createdAt"`
	UpdatedAt   *string     `json:"updatedAt"`
	Columns     []columnOut `json:"columns"`
}

type columnIn struct {
	ColumnID     *int64 `json:"columnId"`
	ColumnName   string `json:"columnName"`
	DataType     int    `json:"dataType"`
	IsRequired   bool   `json:"isRequired"`
	DisplayOrder int    `json:"displayOrder"`
	DefaultValue string `json:"defaultValue"`
	ForceUpdate  bool   `json:"forceUpdate"`
}

type createTableIn struct {
	TableName   string     `json:"tableName"`
	Description string     `json:"description"`
	Columns     []columnIn `json:"columns"`
}

type updateTableIn struct {
	TableID     int64      `json:"tableId"`
	TableName   string     `json:"tableName"`
	Description string     `json:"description"`
	Columns     []columnIn `json:"columns"`
}

type validationOut struct {
	IsValid                    bool                `json:"isValid"`
	HasStructuralChanges       bool                `json:"hasStructuralChanges"`
	HasDataCompatibilityIssues bool                `json:"hasDataCompatibilityIssues"`
	RequiresForceUpdate        bool                `json:"requiresForceUpdate"`
	Issues                     []string            `json:"issues"`
	DataIssues                 []string            `json:"dataIssues"`
	ColumnIssues               map[string][]string `json:"columnIssues"`
	AffectedRowCount           int                 `json:"affectedRowCount"`
}

func (e *Emulator) columnToWire(c schema.Column) columnOut {
	code, err := e.codes.Encode(c.Type)
	if err != nil {
		// Unknown types are stored opaquely and echoed back as text.
		code, _ = e.codes.Encode(schema.TypeVarchar)
	}

	return columnOut{
		ID:           c.ID,
		ColumnName:   c.Name,
		DataType:     code,
		IsRequired:   c.Required,
		DisplayOrder: c.DisplayOrder,
		DefaultValue: c.DefaultValue,
	}
}

func (e *Emulator) tableToWire(t *schema.Table) tableOut {
	out := tableOut{
		ID:          t.ID,
		TableName:   t.Name,
		Description: t.Description,
		UserID:      t.OwnerID,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		Columns:     make([]columnOut, len(t.Columns)),
	}

	if t.UpdatedAt != nil {
		updated := t.UpdatedAt.Format(time.RFC3339)
		out.UpdatedAt = &updated
	}

	for i, c := range schema.SortColumns(t.Columns) {
		out.Columns[i] = e.columnToWire(c)
	}

	return out
}

func (e *Emulator) columnFromWire(in columnIn) (schema.Column, error) {
	t := e.codes.Decode(in.DataType)
	if t == schema.TypeUnknown {
		return schema.Column{}, errs.E(errs.Validation, fmt.Sprintf("column %q: unknown data type code %d", in.ColumnName, in.DataType))
	}

	c := schema.Column{
		Name:         in.ColumnName,
		Type:         t,
		Required:     in.IsRequired,
		DisplayOrder: in.DisplayOrder,
		DefaultValue: in.DefaultValue,
	}

	if in.ColumnID != nil {
		c.ID = *in.ColumnID
	}

	return c, nil
}

func (e *Emulator) listTables(_ context.Context, _ *http.Request, _ any) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]tableOut, 0, len(e.tables))
	for _, t := range e.tables {
		out = append(out, e.tableToWire(t))
	}

	return ok(out), nil
}

func (e *Emulator) getTable(_ context.Context, r *http.Request, _ any) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	id, err := idParam(r, "id")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok2 := e.tables[id]
	if !ok2 {
		return nil, errs.E(errs.NotExist, fmt.Sprintf("table %d not found", id))
	}

	return ok(e.tableToWire(t)), nil
}

func (e *Emulator) createTable(_ context.Context, _ *http.Request, in createTableIn) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := &schema.Table{
		Name:        in.TableName,
		Description: in.Description,
		CreatedAt:   time.Now().UTC(),
		Columns:     make([]schema.Column, len(in.Columns)),
	}

	for i, c := range in.Columns {
		col, err := e.columnFromWire(c)
		if err != nil {
			return nil, err
		}

		t.Columns[i] = col
	}

	err := t.Validate()
	if err != nil {
		return nil, errs.E(errs.Validation, err)
	}

	for _, other := range e.tables {
		if other.Name == t.Name {
			return nil, errs.E(errs.Exist, fmt.Sprintf("a table named %q already exists", t.Name))
		}
	}

	t.ID = e.allocID()
	for i := range t.Columns {
		t.Columns[i].ID = e.allocID()
	}

	t.Columns = schema.SortColumns(t.Columns)

	e.tables[t.ID] = t
	e.rows[t.ID] = nil

	return ok(e.tableToWire(t)), nil
}

func (e *Emulator) deleteTable(_ context.Context, r *http.Request, _ any) (*transport.Empty, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	id, err := idParam(r, "id")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tables[id]; !ok {
		return nil, errs.E(errs.NotExist, fmt.Sprintf("table %d not found", id))
	}

	delete(e.tables, id)
	delete(e.rows, id)

	return &transport.Empty{}, nil
}

// updateTable applies a table update or, when the change is risky and
// no column carries the force flag, blocks it with a 409 that carries
// the validation outcome.
func (e *Emulator) updateTable(_ context.Context, r *http.Request, in updateTableIn) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	id, err := idParam(r, "id")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok2 := e.tables[id]
	if !ok2 {
		return nil, errs.E(errs.NotExist, fmt.Sprintf("table %d not found", id))
	}

	next, force, err := e.updateColumns(t, in)
	if err != nil {
		return nil, err
	}

	v := e.assess(t, next)
	if v.RequiresForceUpdate && !force {
		return &envelopeOut{
			Success: false,
			Message: "update requires confirmation",
			Data:    v,
			status:  http.StatusConflict,
		}, nil
	}

	e.apply(t, in, next)

	return ok(e.tableToWire(t)), nil
}

func (e *Emulator) validateTable(_ context.Context, r *http.Request, in updateTableIn) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	id, err := idParam(r, "id")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok2 := e.tables[id]
	if !ok2 {
		return nil, errs.E(errs.NotExist, fmt.Sprintf("table %d not found", id))
	}

	next, _, err := e.updateColumns(t, in)
	if err != nil {
		return nil, err
	}

	return ok(e.assess(t, next)), nil
}

// updateColumns resolves the requested column set against the stored
// one. Columns with an id must exist; columns without get one
// assigned on apply. It also reports whether any column carried the
// force flag.
func (e *Emulator) updateColumns(t *schema.Table, in updateTableIn) ([]schema.Column, bool, error) {
	next := make([]schema.Column, len(in.Columns))
	force := false

	for i, c := range in.Columns {
		col, err := e.columnFromWire(c)
		if err != nil {
			return nil, false, err
		}

		if col.ID != 0 {
			if _, ok := schema.FindColumnByID(t.Columns, col.ID); !ok {
				return nil, false, errs.E(errs.Validation, fmt.Sprintf("column %d does not belong to table %d", col.ID, t.ID))
			}
		}

		force = force || c.ForceUpdate
		next[i] = col
	}

	probe := schema.Table{Name: in.TableName, Description: in.Description, Columns: next}

	err := probe.Validate()
	if err != nil {
		return nil, false, errs.E(errs.Validation, err)
	}

	return next, force, nil
}

// assess computes the risk of replacing the stored columns with the
// requested ones, checking every stored row against the new schema.
func (e *Emulator) assess(t *schema.Table, next []schema.Column) *validationOut {
	v := &validationOut{
		IsValid:      true,
		Issues:       []string{},
		DataIssues:   []string{},
		ColumnIssues: map[string][]string{},
	}

	byID := map[int64]schema.Column{}
	for _, c := range next {
		if c.ID != 0 {
			byID[c.ID] = c
		}
	}

	affected := map[int64]bool{}

	for _, old := range t.Columns {
		updated, kept := byID[old.ID]
		if !kept {
			v.HasStructuralChanges = true
			v.Issues = append(v.Issues, fmt.Sprintf("column %q will be removed and its data deleted", old.Name))

			continue
		}

		if updated.Type != old.Type {
			v.HasStructuralChanges = true
			v.Issues = append(v.Issues, fmt.Sprintf("column %q changes type from %s to %s", old.Name, old.Type, updated.Type))
		}

		if updated.Required && !old.Required {
			v.HasStructuralChanges = true
			v.Issues = append(v.Issues, fmt.Sprintf("column %q becomes required", updated.Name))
		}

		for _, rec := range e.rows[t.ID] {
			fe := rowcodec.Validate(rec.values[old.ID], updated)
			if fe == nil {
				continue
			}

			affected[rec.id] = true
			v.HasDataCompatibilityIssues = true
			v.ColumnIssues[updated.Name] = append(v.ColumnIssues[updated.Name],
				fmt.Sprintf("row %d: %s", rec.id, fe.Error()))
		}
	}

	for name, issues := range v.ColumnIssues {
		v.DataIssues = append(v.DataIssues, fmt.Sprintf("column %q has %d incompatible values", name, len(issues)))
	}

	v.AffectedRowCount = len(affected)
	v.RequiresForceUpdate = v.HasDataCompatibilityIssues ||
		(v.HasStructuralChanges && len(e.rows[t.ID]) > 0)
	v.IsValid = !v.RequiresForceUpdate

	return v
}

// apply replaces the stored schema and scrubs row values that no
// longer fit: values of removed columns are dropped, values the new
// type cannot represent are cleared.
func (e *Emulator) apply(t *schema.Table, in updateTableIn, next []schema.Column) {
	for i := range next {
		if next[i].ID == 0 {
			next[i].ID = e.allocID()
		}
	}

	kept := map[int64]schema.Column{}
	for _, c := range next {
		kept[c.ID] = c
	}

	for _, rec := range e.rows[t.ID] {
		for id, value := range rec.values {
			c, ok := kept[id]
			if !ok {
				delete(rec.values, id)

				continue
			}

			if fe := rowcodec.Validate(value, c); fe != nil {
				delete(rec.values, id)
			}
		}
	}

	now := time.Now().UTC()

	t.Name = in.TableName
	t.Description = in.Description
	t.Columns = schema.SortColumns(next)
	t.UpdatedAt = &now
}
