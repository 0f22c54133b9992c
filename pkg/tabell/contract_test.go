package tabell

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabell-io/tabell-go/pkg/schema"
)

func TestNewContract(t *testing.T) {
	legacy, err := NewContract("legacy", schema.ZeroBasedTypeCodes())
	require.NoError(t, err)
	assert.Equal(t, "legacy", legacy.Version())

	env, err := NewContract("envelope", schema.OneBasedTypeCodes())
	require.NoError(t, err)
	assert.Equal(t, "envelope", env.Version())

	_, err = NewContract("v3", schema.OneBasedTypeCodes())
	assert.Error(t, err)
}

func TestLegacyUnwrap(t *testing.T) {
	c := &legacyContract{codes: schema.ZeroBasedTypeCodes()}

	w := wireTable{}
	require.NoError(t, c.Unwrap([]byte(`{"id":7,"tableName":"People"}`), &w))

	assert.Equal(t, int64(7), w.ID)
	assert.Equal(t, "People", w.TableName)
}

func TestEnvelopeUnwrap(t *testing.T) {
	c := &envelopeContract{codes: schema.OneBasedTypeCodes()}

	testCases := []struct {
		name      string
		body      string
		expectErr bool
	}{
		{
			name: "success with data",
			body: `{"success":true,"data":{"id":7,"tableName":"People"}}`,
		},
		{
			name: "failure with data still decodes",
			body: `{"success":false,"message":"update requires confirmation","data":{"id":7,"tableName":"People"}}`,
		},
		{
			name:      "failure without data",
			body:      `{"success":false,"message":"boom"}`,
			expectErr: true,
		},
		{
			name:      "success without data",
			body:      `{"success":true}`,
			expectErr: true,
		},
		{
			name:      "not json",
			body:      `<html>`,
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := wireTable{}

			err := c.Unwrap([]byte(tc.body), &w)
			if tc.expectErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, int64(7), w.ID)
		})
	}
}

func TestColumnValuesKeying(t *testing.T) {
	columns := []schema.Column{
		{ID: 11, Name: "Ad", Type: schema.TypeVarchar},
		{ID: 12, Name: "Yas", Type: schema.TypeInt},
	}

	form := map[int64]string{11: "Ali", 12: ""}

	legacy := &legacyContract{codes: schema.ZeroBasedTypeCodes()}

	byName, err := legacy.ColumnValues(form, columns)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(map[string]string{"Ad": "Ali"}, byName))

	env := &envelopeContract{codes: schema.OneBasedTypeCodes()}

	byID, err := env.ColumnValues(form, columns)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(map[string]string{"11": "Ali"}, byID))
}

func TestEnvelopeColumnValuesRejectsUnsavedColumns(t *testing.T) {
	env := &envelopeContract{codes: schema.OneBasedTypeCodes()}

	columns := []schema.Column{{ID: 0, Name: "Ad", Type: schema.TypeVarchar}}

	_, err := env.ColumnValues(map[int64]string{0: "Ali"}, columns)
	assert.Error(t, err)
}

func TestTableFromWire(t *testing.T) {
	updated := "2024-02-01T09:00:00Z"

	w := wireTable{
		ID:        7,
		TableName: "People",
		UserID:    3,
		CreatedAt: "2024-01-15T10:30:00Z",
		UpdatedAt: &updated,
		Columns: []wireColumn{
			{ID: 2, ColumnName: "Yas", DataType: 2, DisplayOrder: 2},
			{ID: 1, ColumnName: "Ad", DataType: 1, IsRequired: true, DisplayOrder: 1},
			{ID: 3, ColumnName: "Gizem", DataType: 42, DisplayOrder: 3},
		},
	}

	got := tableFromWire(schema.OneBasedTypeCodes(), w)

	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, int64(3), got.OwnerID)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), got.CreatedAt)
	require.NotNil(t, got.UpdatedAt)

	// Columns come back in display order, unknown codes degrade to
	// opaque text instead of failing.
	require.Len(t, got.Columns, 3)
	assert.Equal(t, "Ad", got.Columns[0].Name)
	assert.Equal(t, schema.TypeVarchar, got.Columns[0].Type)
	assert.Equal(t, "Yas", got.Columns[1].Name)
	assert.Equal(t, schema.TypeInt, got.Columns[1].Type)
	assert.Equal(t, schema.TypeUnknown, got.Columns[2].Type)
}

func TestTableDataFromWire(t *testing.T) {
	w := wireTableData{
		TableID:   7,
		TableName: "People",
		Columns: []wireColumn{
			{ID: 1, ColumnName: "Ad", DataType: 1, DisplayOrder: 1},
			{ID: 2, ColumnName: "Yas", DataType: 2, DisplayOrder: 2},
			{ID: 3, ColumnName: "Bakiye", DataType: 3, DisplayOrder: 3},
		},
		Data: []wireRow{
			{
				RowIdentifier: 100,
				Values: map[string]any{
					"Ad":     "Ali",
					"Yas":    float64(30),
					"Bakiye": 1200.5,
				},
			},
		},
	}

	got := tableDataFromWire(schema.OneBasedTypeCodes(), w)

	require.Len(t, got.Rows, 1)
	assert.Equal(t, int64(100), got.Rows[0].ID)

	// JSON numbers arrive as float64; integral ones must round-trip
	// without a fraction.
	expect := map[string]string{"Ad": "Ali", "Yas": "30", "Bakiye": "1200.5"}
	assert.Empty(t, cmp.Diff(expect, got.Rows[0].Values))
}

func TestColumnUpdatesToWire(t *testing.T) {
	codes := schema.OneBasedTypeCodes()

	updates := []ColumnUpdate{
		{ID: 5, Name: "Ad", Type: schema.TypeVarchar, DisplayOrder: 1},
		{Name: "Yeni", Type: schema.TypeInt, DisplayOrder: 2},
	}

	out, err := columnUpdatesToWire(codes, updates, true)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Existing columns carry their id, new ones omit it; the force
	// flag rides on every column.
	require.NotNil(t, out[0].ColumnID)
	assert.Equal(t, int64(5), *out[0].ColumnID)
	assert.True(t, out[0].ForceUpdate)
	assert.Nil(t, out[1].ColumnID)
	assert.True(t, out[1].ForceUpdate)

	_, err = columnUpdatesToWire(codes, []ColumnUpdate{{Name: "X", Type: schema.TypeUnknown}}, false)
	assert.Error(t, err)
}

func TestStringifyValue(t *testing.T) {
	testCases := []struct {
		name   string
		in     any
		expect string
	}{
		{name: "nil", in: nil, expect: ""},
		{name: "string", in: "Ali", expect: "Ali"},
		{name: "integral float", in: float64(30), expect: "30"},
		{name: "fractional float", in: 1200.5, expect: "1200.5"},
		{name: "bool", in: true, expect: "true"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, stringifyValue(tc.in))
		})
	}
}
