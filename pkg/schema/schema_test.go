package schema_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabell-io/tabell-go/pkg/schema"
)

func TestTypeCodes(t *testing.T) {
	testCases := []struct {
		name   string
		codes  schema.TypeCodes
		code   int
		expect schema.DataType
	}{
		{
			name:   "zero based varchar",
			codes:  schema.ZeroBasedTypeCodes(),
			code:   0,
			expect: schema.TypeVarchar,
		},
		{
			name:   "zero based datetime",
			codes:  schema.ZeroBasedTypeCodes(),
			code:   3,
			expect: schema.TypeDatetime,
		},
		{
			name:   "one based varchar",
			codes:  schema.OneBasedTypeCodes(),
			code:   1,
			expect: schema.TypeVarchar,
		},
		{
			name:   "one based datetime",
			codes:  schema.OneBasedTypeCodes(),
			code:   4,
			expect: schema.TypeDatetime,
		},
		{
			name:   "unmapped code degrades to unknown",
			codes:  schema.OneBasedTypeCodes(),
			code:   99,
			expect: schema.TypeUnknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.codes.Decode(tc.code))
		})
	}
}

func TestTypeCodesEncode(t *testing.T) {
	codes := schema.OneBasedTypeCodes()

	code, err := codes.Encode(schema.TypeDecimal)
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	_, err = codes.Encode(schema.TypeUnknown)
	assert.Error(t, err)
}

func TestTypeCodesRoundTrip(t *testing.T) {
	for _, codes := range []schema.TypeCodes{schema.ZeroBasedTypeCodes(), schema.OneBasedTypeCodes()} {
		for _, dt := range []schema.DataType{schema.TypeVarchar, schema.TypeInt, schema.TypeDecimal, schema.TypeDatetime} {
			code, err := codes.Encode(dt)
			require.NoError(t, err)
			assert.Equal(t, dt, codes.Decode(code))
		}
	}
}

func TestParseDataType(t *testing.T) {
	assert.Equal(t, schema.TypeVarchar, schema.ParseDataType("VARCHAR"))
	assert.Equal(t, schema.TypeInt, schema.ParseDataType("INT"))
	assert.Equal(t, schema.TypeDecimal, schema.ParseDataType("DECIMAL"))
	assert.Equal(t, schema.TypeDatetime, schema.ParseDataType("DATETIME"))
	assert.Equal(t, schema.TypeUnknown, schema.ParseDataType("BLOB"))
}

func TestFindColumn(t *testing.T) {
	columns := []schema.Column{
		{ID: 1, Name: "Ad"},
		{ID: 2, Name: "Yas"},
	}

	col, ok := schema.FindColumnByID(columns, 2)
	assert.True(t, ok)
	assert.Equal(t, "Yas", col.Name)

	_, ok = schema.FindColumnByID(columns, 3)
	assert.False(t, ok)

	col, ok = schema.FindColumnByName(columns, "Ad")
	assert.True(t, ok)
	assert.Equal(t, int64(1), col.ID)

	_, ok = schema.FindColumnByName(columns, "Soyad")
	assert.False(t, ok)
}

func TestSortColumns(t *testing.T) {
	columns := []schema.Column{
		{ID: 1, Name: "C", DisplayOrder: 3},
		{ID: 2, Name: "A", DisplayOrder: 1},
		{ID: 3, Name: "B", DisplayOrder: 2},
	}

	sorted := schema.SortColumns(columns)

	got := make([]string, len(sorted))
	for i, c := range sorted {
		got[i] = c.Name
	}

	assert.Empty(t, cmp.Diff([]string{"A", "B", "C"}, got))

	// The input slice is left alone.
	assert.Equal(t, "C", columns[0].Name)
}

func TestTableValidate(t *testing.T) {
	valid := schema.Table{
		Name: "People",
		Columns: []schema.Column{
			{Name: "Ad", Type: schema.TypeVarchar, DisplayOrder: 1},
			{Name: "Yas", Type: schema.TypeInt, DisplayOrder: 2},
		},
	}

	testCases := []struct {
		name      string
		mutate    func(t *schema.Table)
		expectErr bool
	}{
		{
			name:   "valid table",
			mutate: func(t *schema.Table) {},
		},
		{
			name:      "name too short",
			mutate:    func(t *schema.Table) { t.Name = "P" },
			expectErr: true,
		},
		{
			name:      "column name starting with digit",
			mutate:    func(t *schema.Table) { t.Columns[0].Name = "1Ad" },
			expectErr: true,
		},
		{
			name:      "duplicate display orders",
			mutate:    func(t *schema.Table) { t.Columns[1].DisplayOrder = 1 },
			expectErr: true,
		},
		{
			name:   "unicode column name",
			mutate: func(t *schema.Table) { t.Columns[0].Name = "Öğrenci Adı" },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table := valid
			table.Columns = append([]schema.Column{}, valid.Columns...)

			tc.mutate(&table)

			err := table.Validate()
			if tc.expectErr {
				assert.Error(t, err)

				return
			}

			assert.NoError(t, err)
		})
	}
}
