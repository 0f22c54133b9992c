package emulator

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tabell-io/tabell-go/pkg/errs"
	"github.com/tabell-io/tabell-go/pkg/rowcodec"
	"github.com/tabell-io/tabell-go/pkg/schema"
	"github.com/tabell-io/tabell-go/pkg/transport"
)

type rowOut struct {
	RowIdentifier int64          `json:"rowIdentifier"`
	Values        map[string]any `json:"values"`
}

type tableDataOut struct {
	TableID   int64       `json:"tableId"`
	TableName string      `json:"tableName"`
	Columns   []columnOut `json:"columns"`
	Data      []rowOut    `json:"data"`
}

type rowWriteIn struct {
	TableID      int64             `json:"tableId"`
	ColumnValues map[string]string `json:"columnValues"`
}

// typedValue renders a stored value the way the backend serializes
// it: numeric columns as JSON numbers, everything else as strings.
func typedValue(value string, t schema.DataType) any {
	switch t {
	case schema.TypeInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return n
		}
	case schema.TypeDecimal:
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}

	return value
}

func (e *Emulator) rowToWire(t *schema.Table, rec *row) rowOut {
	out := rowOut{RowIdentifier: rec.id, Values: map[string]any{}}

	for _, c := range t.Columns {
		value, ok := rec.values[c.ID]
		if !ok || value == "" {
			continue
		}

		out.Values[c.Name] = typedValue(value, c.Type)
	}

	return out
}

func (e *Emulator) listRows(_ context.Context, r *http.Request, _ any) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	tableID, err := idParam(r, "tableID")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok2 := e.tables[tableID]
	if !ok2 {
		return nil, errs.E(errs.NotExist, fmt.Sprintf("table %d not found", tableID))
	}

	out := tableDataOut{
		TableID:   t.ID,
		TableName: t.Name,
		Columns:   make([]columnOut, len(t.Columns)),
		Data:      make([]rowOut, len(e.rows[t.ID])),
	}

	for i, c := range t.Columns {
		out.Columns[i] = e.columnToWire(c)
	}

	for i, rec := range e.rows[t.ID] {
		out.Data[i] = e.rowToWire(t, rec)
	}

	return ok(out), nil
}

// parseRowWrite resolves id-keyed column values against the table's
// schema, fills defaults for absent columns, and validates the result.
func (e *Emulator) parseRowWrite(t *schema.Table, in rowWriteIn) (map[int64]string, error) {
	form := map[int64]string{}

	for key, value := range in.ColumnValues {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errs.E(errs.Validation, fmt.Sprintf("column key %q is not a column id", key))
		}

		if _, ok := schema.FindColumnByID(t.Columns, id); !ok {
			return nil, errs.E(errs.Validation, fmt.Sprintf("column %d does not belong to table %d", id, t.ID))
		}

		form[id] = value
	}

	for _, c := range t.Columns {
		if form[c.ID] == "" && c.DefaultValue != "" {
			form[c.ID] = c.DefaultValue
		}
	}

	if fe := rowcodec.ValidateRow(form, t.Columns); len(fe) > 0 {
		return nil, errs.E(errs.Validation, errs.Fields(fe.Fields()), "row values failed validation")
	}

	return form, nil
}

func (e *Emulator) createRow(_ context.Context, _ *http.Request, in rowWriteIn) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok2 := e.tables[in.TableID]
	if !ok2 {
		return nil, errs.E(errs.NotExist, fmt.Sprintf("table %d not found", in.TableID))
	}

	form, err := e.parseRowWrite(t, in)
	if err != nil {
		return nil, err
	}

	rec := &row{id: e.allocID(), values: form}
	e.rows[t.ID] = append(e.rows[t.ID], rec)

	return ok(e.rowToWire(t, rec)), nil
}

func (e *Emulator) updateRow(_ context.Context, r *http.Request, in rowWriteIn) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	rowID, err := idParam(r, "rowID")
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok2 := e.tables[in.TableID]
	if !ok2 {
		return nil, errs.E(errs.NotExist, fmt.Sprintf("table %d not found", in.TableID))
	}

	for _, rec := range e.rows[t.ID] {
		if rec.id != rowID {
			continue
		}

		form, err := e.parseRowWrite(t, in)
		if err != nil {
			return nil, err
		}

		rec.values = form

		return ok(e.rowToWire(t, rec)), nil
	}

	return nil, errs.E(errs.NotExist, fmt.Sprintf("row %d not found in table %d", rowID, t.ID))
}

// deleteRow removes one row; deleting it again is a 404, not a silent
// success.
func (e *Emulator) deleteRow(_ context.Context, r *http.Request, _ any) (*transport.Empty, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	rowID, err := idParam(r, "rowID")
	if err != nil {
		return nil, err
	}

	tableID, err := strconv.ParseInt(r.URL.Query().Get("tableId"), 10, 64)
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, "missing or invalid tableId query parameter")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tables[tableID]; !ok {
		return nil, errs.E(errs.NotExist, fmt.Sprintf("table %d not found", tableID))
	}

	recs := e.rows[tableID]
	for i, rec := range recs {
		if rec.id != rowID {
			continue
		}

		e.rows[tableID] = append(recs[:i], recs[i+1:]...)

		return &transport.Empty{}, nil
	}

	return nil, errs.E(errs.NotExist, fmt.Sprintf("row %d not found in table %d", rowID, tableID))
}

type statsOut struct {
	TotalTables     int `json:"totalTables"`
	TotalRecords    int `json:"totalRecords"`
	TablesThisMonth int `json:"tablesThisMonth"`
	ActiveTables    int `json:"activeTables"`
}

func (e *Emulator) stats(_ context.Context, _ *http.Request, _ any) (*envelopeOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()
	out := statsOut{TotalTables: len(e.tables)}

	for id, t := range e.tables {
		count := len(e.rows[id])

		out.TotalRecords += count

		if count > 0 {
			out.ActiveTables++
		}

		if t.CreatedAt.Year() == now.Year() && t.CreatedAt.Month() == now.Month() {
			out.TablesThisMonth++
		}
	}

	return ok(out), nil
}
