package rowcodec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabell-io/tabell-go/pkg/rowcodec"
	"github.com/tabell-io/tabell-go/pkg/schema"
)

func testColumns() []schema.Column {
	return []schema.Column{
		{ID: 1, Name: "Ad", Type: schema.TypeVarchar, Required: true, DisplayOrder: 1},
		{ID: 2, Name: "Yas", Type: schema.TypeInt, DisplayOrder: 2},
		{ID: 3, Name: "Bakiye", Type: schema.TypeDecimal, DisplayOrder: 3},
		{ID: 4, Name: "Kayit", Type: schema.TypeDatetime, DisplayOrder: 4},
	}
}

func TestEncode(t *testing.T) {
	testCases := []struct {
		name   string
		form   map[int64]string
		expect map[string]string
	}{
		{
			name:   "empty values are omitted",
			form:   map[int64]string{1: "Ali", 2: ""},
			expect: map[string]string{"Ad": "Ali"},
		},
		{
			name:   "unknown column ids are never emitted",
			form:   map[int64]string{1: "Ali", 99: "stray"},
			expect: map[string]string{"Ad": "Ali"},
		},
		{
			name:   "all values present",
			form:   map[int64]string{1: "Ali", 2: "30", 3: "12.5", 4: "2024-01-15"},
			expect: map[string]string{"Ad": "Ali", "Yas": "30", "Bakiye": "12.5", "Kayit": "2024-01-15"},
		},
		{
			name:   "empty form",
			form:   map[int64]string{},
			expect: map[string]string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := rowcodec.Encode(tc.form, testColumns())

			assert.Empty(t, cmp.Diff(tc.expect, got))
		})
	}
}

func TestDecode(t *testing.T) {
	got := rowcodec.Decode(map[string]string{"Ad": "Ali", "Yas": "30"}, testColumns())

	expect := map[int64]string{1: "Ali", 2: "30", 3: "", 4: ""}

	assert.Empty(t, cmp.Diff(expect, got))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	form := map[int64]string{1: "Ali", 2: "30", 3: "12.5", 4: "2024-01-15"}

	got := rowcodec.Decode(rowcodec.Encode(form, testColumns()), testColumns())

	assert.Empty(t, cmp.Diff(form, got))
}

func TestParseDatetime(t *testing.T) {
	testCases := []struct {
		name      string
		value     string
		expect    time.Time
		expectErr bool
	}{
		{
			name:   "rfc3339",
			value:  "2024-01-15T10:30:00Z",
			expect: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:   "iso without zone",
			value:  "2024-01-15T10:30:00",
			expect: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:   "space separated",
			value:  "2024-01-15 10:30:00",
			expect: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:   "date only",
			value:  "2024-01-15",
			expect: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "garbage",
			value:     "yesterday",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rowcodec.ParseDatetime(tc.value)

			if tc.expectErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.True(t, tc.expect.Equal(got))
		})
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		value  string
		col    schema.Column
		expect rowcodec.Reason
	}{
		{
			name:   "required empty",
			value:  "",
			col:    schema.Column{Name: "Ad", Type: schema.TypeVarchar, Required: true},
			expect: rowcodec.RequiredFieldMissing,
		},
		{
			name:  "optional empty passes",
			value: "",
			col:   schema.Column{Name: "Yas", Type: schema.TypeInt},
		},
		{
			name:   "int rejects text",
			value:  "abc",
			col:    schema.Column{Name: "Yas", Type: schema.TypeInt},
			expect: rowcodec.NotANumber,
		},
		{
			name:   "int rejects fraction",
			value:  "12.5",
			col:    schema.Column{Name: "Yas", Type: schema.TypeInt},
			expect: rowcodec.NotANumber,
		},
		{
			name:  "int accepts negative",
			value: "-12",
			col:   schema.Column{Name: "Yas", Type: schema.TypeInt},
		},
		{
			name:   "decimal rejects text",
			value:  "abc",
			col:    schema.Column{Name: "Bakiye", Type: schema.TypeDecimal},
			expect: rowcodec.NotADecimal,
		},
		{
			name:  "decimal accepts fraction",
			value: "12.5",
			col:   schema.Column{Name: "Bakiye", Type: schema.TypeDecimal},
		},
		{
			name:   "datetime rejects garbage",
			value:  "not a date",
			col:    schema.Column{Name: "Kayit", Type: schema.TypeDatetime},
			expect: rowcodec.NotADate,
		},
		{
			name:  "datetime accepts date only",
			value: "2024-01-15",
			col:   schema.Column{Name: "Kayit", Type: schema.TypeDatetime},
		},
		{
			name:   "varchar rejects overlong",
			value:  strings.Repeat("å", 256),
			col:    schema.Column{Name: "Ad", Type: schema.TypeVarchar},
			expect: rowcodec.TooLong,
		},
		{
			name:  "varchar accepts 255 runes",
			value: strings.Repeat("å", 255),
			col:   schema.Column{Name: "Ad", Type: schema.TypeVarchar},
		},
		{
			name:  "unknown type is opaque text",
			value: "anything at all",
			col:   schema.Column{Name: "X", Type: schema.TypeUnknown},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := rowcodec.Validate(tc.value, tc.col)

			if tc.expect == 0 {
				assert.Nil(t, got)

				return
			}

			require.NotNil(t, got)
			assert.Equal(t, tc.expect, got.Reason)
			assert.Equal(t, tc.col.Name, got.Column)
		})
	}
}

func TestValidateRow(t *testing.T) {
	form := map[int64]string{
		1: "",
		2: "abc",
		3: "12.5",
	}

	failed := rowcodec.ValidateRow(form, testColumns())
	require.Len(t, failed, 2)

	// Failures arrive in display order.
	assert.Equal(t, "Ad", failed[0].Column)
	assert.Equal(t, "Yas", failed[1].Column)

	fields := failed.Fields()
	assert.Equal(t, []string{"Ad is required"}, fields["Ad"])
	assert.Equal(t, []string{"Yas must be an integer"}, fields["Yas"])
}

func TestValidateRowPasses(t *testing.T) {
	form := map[int64]string{1: "Ali"}

	assert.Nil(t, rowcodec.ValidateRow(form, testColumns()))
}
