package tabell

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tabell-io/tabell-go/pkg/rowcodec"
	"github.com/tabell-io/tabell-go/pkg/schema"
)

// Contract adapts the client to one backend contract generation. The
// generations differ in three observed ways: response envelope or
// bare payloads, 0-based or 1-based data-type codes, and row writes
// keyed by column name or by column id. Which generation a deployment
// speaks is configuration; nothing is inferred from payloads.
type Contract interface {
	Version() string
	TypeCodes() schema.TypeCodes

	// Unwrap decodes a response body into target, stripping the
	// envelope when this generation uses one.
	Unwrap(body []byte, into any) error

	// ColumnValues converts form values (keyed by column id) into the
	// wire mapping this generation expects for row writes. Only
	// non-empty values of known columns are included.
	ColumnValues(form map[int64]string, columns []schema.Column) (map[string]string, error)
}

// NewContract returns the adapter for the named contract generation,
// "legacy" or "envelope", with the given wire-code table.
func NewContract(version string, codes schema.TypeCodes) (Contract, error) {
	switch version {
	case "legacy":
		return &legacyContract{codes: codes}, nil
	case "envelope":
		return &envelopeContract{codes: codes}, nil
	}

	return nil, fmt.Errorf("unknown contract version %q", version)
}

// legacyContract speaks the first backend generation: bare response
// payloads and row writes keyed by column name.
type legacyContract struct {
	codes schema.TypeCodes
}

func (c *legacyContract) Version() string { return "legacy" }

func (c *legacyContract) TypeCodes() schema.TypeCodes { return c.codes }

func (c *legacyContract) Unwrap(body []byte, into any) error {
	if into == nil {
		return nil
	}

	err := json.Unmarshal(body, into)
	if err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func (c *legacyContract) ColumnValues(form map[int64]string, columns []schema.Column) (map[string]string, error) {
	return rowcodec.Encode(form, columns), nil
}

// envelope is the outer wrapper of second-generation responses.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// envelopeContract speaks the second backend generation:
// {success,data,message} envelopes and row writes keyed by column id.
type envelopeContract struct {
	codes schema.TypeCodes
}

func (c *envelopeContract) Version() string { return "envelope" }

func (c *envelopeContract) TypeCodes() schema.TypeCodes { return c.codes }

func (c *envelopeContract) Unwrap(body []byte, into any) error {
	env := envelope{}

	err := json.Unmarshal(body, &env)
	if err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}

	// A failure envelope may still carry data, e.g. the validation
	// result of a blocked table update.
	if len(env.Data) == 0 {
		if !env.Success {
			return fmt.Errorf("backend reported failure: %s", env.Message)
		}

		if into == nil {
			return nil
		}

		return fmt.Errorf("envelope carries no data")
	}

	if into == nil {
		return nil
	}

	err = json.Unmarshal(env.Data, into)
	if err != nil {
		return fmt.Errorf("decoding envelope data: %w", err)
	}

	return nil
}

func (c *envelopeContract) ColumnValues(form map[int64]string, columns []schema.Column) (map[string]string, error) {
	out := make(map[string]string, len(columns))

	for _, col := range columns {
		value, ok := form[col.ID]
		if !ok || value == "" {
			continue
		}

		if col.ID == 0 {
			return nil, fmt.Errorf("column %q has no id, cannot key row values by id", col.Name)
		}

		out[strconv.FormatInt(col.ID, 10)] = value
	}

	return out, nil
}

// Wire shapes shared by both generations.

type wireColumn struct {
	ID           int64  `json:"id"`
	ColumnName   string `json:"columnName"`
	DataType     int    `json:"dataType"`
	IsRequired   bool   `json:"isRequired"`
	DisplayOrder int    `json:"displayOrder"`
	DefaultValue string `json:"defaultValue"`
}

type wireTable struct {
	ID          int64        `json:"id"`
	TableName   string       `json:"tableName"`
	Description string       `json:"description"`
	UserID      int64        `json:"userId"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   *string      `json:"updatedAt"`
	Columns     []wireColumn `json:"columns"`
}

type wireRow struct {
	RowIdentifier int64          `json:"rowIdentifier"`
	Values        map[string]any `json:"values"`
}

type wireTableData struct {
	TableID   int64        `json:"tableId"`
	TableName string       `json:"tableName"`
	Columns   []wireColumn `json:"columns"`
	Data      []wireRow    `json:"data"`
}

type wireColumnSpec struct {
	ColumnName   string `json:"columnName"`
	DataType     int    `json:"dataType"`
	IsRequired   bool   `json:"isRequired"`
	DisplayOrder int    `json:"displayOrder"`
	DefaultValue string `json:"defaultValue"`
}

type wireCreateTable struct {
	TableName   string           `json:"tableName"`
	Description string           `json:"description"`
	Columns     []wireColumnSpec `json:"columns"`
}

type wireColumnUpdate struct {
	ColumnID     *int64 `json:"columnId,omitempty"`
	ColumnName   string `json:"columnName"`
	DataType     int    `json:"dataType"`
	IsRequired   bool   `json:"isRequired"`
	DisplayOrder int    `json:"displayOrder"`
	DefaultValue string `json:"defaultValue"`
	ForceUpdate  bool   `json:"forceUpdate,omitempty"`
}

type wireUpdateTable struct {
	TableID     int64              `json:"tableId"`
	TableName   string             `json:"tableName"`
	Description string             `json:"description"`
	Columns     []wireColumnUpdate `json:"columns"`
}

type wireRowWrite struct {
	TableID      int64             `json:"tableId"`
	ColumnValues map[string]string `json:"columnValues"`
}

type wireAuthResponse struct {
	Success                   bool   `json:"success"`
	Message                   string `json:"message"`
	Token                     string `json:"token"`
	User                      *User  `json:"user"`
	RequiresEmailConfirmation bool   `json:"requiresEmailConfirmation"`
}

// Translation between wire shapes and the canonical model.

func columnFromWire(tc schema.TypeCodes, w wireColumn) schema.Column {
	return schema.Column{
		ID:           w.ID,
		Name:         w.ColumnName,
		Type:         tc.Decode(w.DataType),
		Required:     w.IsRequired,
		DefaultValue: w.DefaultValue,
		DisplayOrder: w.DisplayOrder,
	}
}

func columnsFromWire(tc schema.TypeCodes, ws []wireColumn) []schema.Column {
	columns := make([]schema.Column, len(ws))
	for i, w := range ws {
		columns[i] = columnFromWire(tc, w)
	}

	return schema.SortColumns(columns)
}

func tableFromWire(tc schema.TypeCodes, w wireTable) schema.Table {
	t := schema.Table{
		ID:          w.ID,
		Name:        w.TableName,
		Description: w.Description,
		OwnerID:     w.UserID,
		CreatedAt:   parseWireTime(w.CreatedAt),
		Columns:     columnsFromWire(tc, w.Columns),
	}

	if w.UpdatedAt != nil {
		updated := parseWireTime(*w.UpdatedAt)
		t.UpdatedAt = &updated
	}

	return t
}

func tableDataFromWire(tc schema.TypeCodes, w wireTableData) *TableData {
	td := &TableData{
		TableID:   w.TableID,
		TableName: w.TableName,
		Columns:   columnsFromWire(tc, w.Columns),
		Rows:      make([]schema.Row, len(w.Data)),
	}

	for i, r := range w.Data {
		values := make(map[string]string, len(r.Values))
		for name, v := range r.Values {
			values[name] = stringifyValue(v)
		}

		td.Rows[i] = schema.Row{ID: r.RowIdentifier, Values: values}
	}

	return td
}

func columnSpecsToWire(tc schema.TypeCodes, specs []ColumnSpec) ([]wireColumnSpec, error) {
	out := make([]wireColumnSpec, len(specs))

	for i, s := range specs {
		code, err := tc.Encode(s.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", s.Name, err)
		}

		out[i] = wireColumnSpec{
			ColumnName:   s.Name,
			DataType:     code,
			IsRequired:   s.Required,
			DisplayOrder: s.DisplayOrder,
			DefaultValue: s.DefaultValue,
		}
	}

	return out, nil
}

func columnUpdatesToWire(tc schema.TypeCodes, updates []ColumnUpdate, force bool) ([]wireColumnUpdate, error) {
	out := make([]wireColumnUpdate, len(updates))

	for i, u := range updates {
		code, err := tc.Encode(u.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", u.Name, err)
		}

		out[i] = wireColumnUpdate{
			ColumnName:   u.Name,
			DataType:     code,
			IsRequired:   u.Required,
			DisplayOrder: u.DisplayOrder,
			DefaultValue: u.DefaultValue,
			ForceUpdate:  force,
		}

		if u.ID != 0 {
			id := u.ID
			out[i].ColumnID = &id
		}
	}

	return out, nil
}

// parseWireTime parses the timestamp formats the backend has been
// seen to emit; unparseable values yield the zero time rather than an
// error, timestamps are presentation-only on this side.
func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := rowcodec.ParseDatetime(s)
	if err != nil {
		return time.Time{}
	}

	return t
}

// stringifyValue renders a decoded JSON value as the canonical stored
// text form. Integral floats print without a fraction so that INT
// values round-trip.
func stringifyValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}

		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
