// Package service orchestrates the client, the row cache, and display
// formatting. The backend stays the sole source of truth: every
// mutation invalidates the affected cache entries and reloads the row
// set in full rather than patching it locally.
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tabell-io/tabell-go/pkg/cache"
	"github.com/tabell-io/tabell-go/pkg/errs"
	"github.com/tabell-io/tabell-go/pkg/rowcodec"
	"github.com/tabell-io/tabell-go/pkg/schema"
	"github.com/tabell-io/tabell-go/pkg/tabell"
)

const tablesKey = "tables"

func rowsKey(tableID int64) string {
	return fmt.Sprintf("rows:%d", tableID)
}

// API is the backend surface the service needs. Implemented by
// tabell.Client.
type API interface {
	Tables(ctx context.Context) ([]schema.Table, error)
	Table(ctx context.Context, id int64) (*schema.Table, error)
	CreateTable(ctx context.Context, req tabell.CreateTableRequest) (*schema.Table, error)
	UpdateTable(ctx context.Context, req tabell.UpdateTableRequest) (*tabell.UpdateTableResult, error)
	ValidateTableUpdate(ctx context.Context, req tabell.UpdateTableRequest) (*tabell.TableValidation, error)
	DeleteTable(ctx context.Context, id int64) error
	Rows(ctx context.Context, tableID int64) (*tabell.TableData, error)
	AddRow(ctx context.Context, tableID int64, form map[int64]string, columns []schema.Column) error
	UpdateRow(ctx context.Context, tableID, rowID int64, form map[int64]string, columns []schema.Column) error
	DeleteRow(ctx context.Context, tableID, rowID int64) error
	Stats(ctx context.Context) (*tabell.DashboardStats, error)
}

type Service struct {
	api       API
	cache     cache.Cacher
	formatter *rowcodec.Formatter
	log       zerolog.Logger
}

func New(api API, cacher cache.Cacher, formatter *rowcodec.Formatter, log zerolog.Logger) *Service {
	return &Service{
		api:       api,
		cache:     cacher,
		formatter: formatter,
		log:       log,
	}
}

// Tables lists the user's tables, served from cache when fresh.
func (s *Service) Tables(ctx context.Context) ([]schema.Table, error) {
	var tables []schema.Table

	if s.cache.Get(tablesKey, &tables) {
		return tables, nil
	}

	tables, err := s.api.Tables(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.Set(tablesKey, tables)

	return tables, nil
}

func (s *Service) Table(ctx context.Context, id int64) (*schema.Table, error) {
	return s.api.Table(ctx, id)
}

func (s *Service) CreateTable(ctx context.Context, req tabell.CreateTableRequest) (*schema.Table, error) {
	t, err := s.api.CreateTable(ctx, req)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(tablesKey)

	return t, nil
}

// UpdateTable applies a schema change. An applied change may have
// scrubbed row values server-side, so both the table list and the
// table's row cache are dropped. A blocked change mutates nothing and
// leaves the cache alone.
func (s *Service) UpdateTable(ctx context.Context, req tabell.UpdateTableRequest) (*tabell.UpdateTableResult, error) {
	res, err := s.api.UpdateTable(ctx, req)
	if err != nil {
		return nil, err
	}

	if res.Table != nil {
		s.cache.Invalidate(tablesKey)
		s.cache.Invalidate(rowsKey(req.TableID))
	}

	return res, nil
}

func (s *Service) ValidateTableUpdate(ctx context.Context, req tabell.UpdateTableRequest) (*tabell.TableValidation, error) {
	return s.api.ValidateTableUpdate(ctx, req)
}

func (s *Service) DeleteTable(ctx context.Context, id int64) error {
	err := s.api.DeleteTable(ctx, id)
	if err != nil {
		return err
	}

	s.cache.Invalidate(tablesKey)
	s.cache.Invalidate(rowsKey(id))

	return nil
}

// Rows returns the full row set of a table, served from cache when
// fresh.
func (s *Service) Rows(ctx context.Context, tableID int64) (*tabell.TableData, error) {
	td := &tabell.TableData{}

	if s.cache.Get(rowsKey(tableID), td) {
		return td, nil
	}

	return s.reloadRows(ctx, tableID)
}

func (s *Service) reloadRows(ctx context.Context, tableID int64) (*tabell.TableData, error) {
	s.cache.Invalidate(rowsKey(tableID))

	td, err := s.api.Rows(ctx, tableID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(rowsKey(tableID), td)

	return td, nil
}

// prepare fills column defaults into the form and validates it
// against the schema, so obviously bad rows never reach the backend.
func prepare(op errs.Op, form map[int64]string, columns []schema.Column) (map[int64]string, error) {
	filled := make(map[int64]string, len(form))
	for id, value := range form {
		filled[id] = value
	}

	for _, c := range columns {
		if filled[c.ID] == "" && c.DefaultValue != "" {
			filled[c.ID] = c.DefaultValue
		}
	}

	if fe := rowcodec.ValidateRow(filled, columns); len(fe) > 0 {
		return nil, errs.E(op, errs.Validation, errs.Fields(fe.Fields()), "row values failed validation")
	}

	return filled, nil
}

// AddRow validates and stores a new row, then reloads the table's row
// set from the backend. The returned data is the post-mutation truth.
func (s *Service) AddRow(ctx context.Context, tableID int64, form map[int64]string) (*tabell.TableData, error) {
	const op errs.Op = "service.AddRow"

	current, err := s.Rows(ctx, tableID)
	if err != nil {
		return nil, err
	}

	filled, err := prepare(op, form, current.Columns)
	if err != nil {
		return nil, err
	}

	err = s.api.AddRow(ctx, tableID, filled, current.Columns)
	if err != nil {
		return nil, err
	}

	return s.reloadRows(ctx, tableID)
}

func (s *Service) UpdateRow(ctx context.Context, tableID, rowID int64, form map[int64]string) (*tabell.TableData, error) {
	const op errs.Op = "service.UpdateRow"

	current, err := s.Rows(ctx, tableID)
	if err != nil {
		return nil, err
	}

	filled, err := prepare(op, form, current.Columns)
	if err != nil {
		return nil, err
	}

	err = s.api.UpdateRow(ctx, tableID, rowID, filled, current.Columns)
	if err != nil {
		return nil, err
	}

	return s.reloadRows(ctx, tableID)
}

func (s *Service) DeleteRow(ctx context.Context, tableID, rowID int64) (*tabell.TableData, error) {
	err := s.api.DeleteRow(ctx, tableID, rowID)
	if err != nil {
		return nil, err
	}

	return s.reloadRows(ctx, tableID)
}

func (s *Service) Stats(ctx context.Context) (*tabell.DashboardStats, error) {
	return s.api.Stats(ctx)
}

// Render formats a row set for display: a header of column names
// followed by one line per row, empty values shown as the
// placeholder.
func (s *Service) Render(td *tabell.TableData) [][]string {
	columns := schema.SortColumns(td.Columns)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Name
	}

	out := make([][]string, 0, len(td.Rows)+1)
	out = append(out, header)

	for _, r := range td.Rows {
		line := make([]string, len(columns))
		for i, c := range columns {
			line[i] = s.formatter.FormatForDisplay(r.Values[c.Name], c.Type)
		}

		out = append(out, line)
	}

	return out
}

func (s *Service) CacheStats() cache.Statistics {
	return s.cache.Stats()
}
