// Package schema holds the canonical client-side model of a
// user-defined table: its typed columns and its rows. Everything the
// backend sends, in any of its contract generations, is translated
// into these types at the remote access boundary.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DataType is the canonical scalar type of a column. The integer wire
// encoding is backend-version-dependent and lives in TypeCodes, never
// here.
type DataType int

const (
	TypeUnknown DataType = iota
	TypeVarchar
	TypeInt
	TypeDecimal
	TypeDatetime
)

func (t DataType) String() string {
	switch t {
	case TypeVarchar:
		return "VARCHAR"
	case TypeInt:
		return "INT"
	case TypeDecimal:
		return "DECIMAL"
	case TypeDatetime:
		return "DATETIME"
	}

	return "UNKNOWN"
}

// ParseDataType maps a type name to its DataType, unknown names map
// to TypeUnknown.
func ParseDataType(s string) DataType {
	switch s {
	case "VARCHAR":
		return TypeVarchar
	case "INT":
		return TypeInt
	case "DECIMAL":
		return TypeDecimal
	case "DATETIME":
		return TypeDatetime
	}

	return TypeUnknown
}

// TypeCodes is the explicit mapping between backend wire codes and
// canonical data types. Backends have been observed to use both
// 0-based and 1-based encodings, so the table is configuration.
type TypeCodes struct {
	byCode map[int]DataType
	byType map[DataType]int
}

func NewTypeCodes(codes map[int]DataType) TypeCodes {
	tc := TypeCodes{
		byCode: make(map[int]DataType, len(codes)),
		byType: make(map[DataType]int, len(codes)),
	}

	for code, t := range codes {
		tc.byCode[code] = t
		tc.byType[t] = code
	}

	return tc
}

// ZeroBasedTypeCodes returns the mapping used by the first backend
// generation: VARCHAR=0, INT=1, DECIMAL=2, DATETIME=3.
func ZeroBasedTypeCodes() TypeCodes {
	return NewTypeCodes(map[int]DataType{
		0: TypeVarchar,
		1: TypeInt,
		2: TypeDecimal,
		3: TypeDatetime,
	})
}

// OneBasedTypeCodes returns the mapping used by the second backend
// generation: VARCHAR=1, INT=2, DECIMAL=3, DATETIME=4.
func OneBasedTypeCodes() TypeCodes {
	return NewTypeCodes(map[int]DataType{
		1: TypeVarchar,
		2: TypeInt,
		3: TypeDecimal,
		4: TypeDatetime,
	})
}

// Decode maps a wire code to its canonical type. Unmapped codes
// degrade to TypeUnknown, which the rest of the module treats as
// opaque text. Failing loudly here would break the client against any
// newer backend that adds a type.
func (tc TypeCodes) Decode(code int) DataType {
	t, ok := tc.byCode[code]
	if !ok {
		return TypeUnknown
	}

	return t
}

// Encode maps a canonical type to its wire code.
func (tc TypeCodes) Encode(t DataType) (int, error) {
	code, ok := tc.byType[t]
	if !ok {
		return 0, fmt.Errorf("no wire code configured for data type %s", t)
	}

	return code, nil
}

// Column is a typed, named, ordered field in a table schema. A zero
// ID marks a column that has not been persisted yet; the backend uses
// ID presence to tell existing columns from new ones on update.
type Column struct {
	ID           int64
	Name         string
	Type         DataType
	Required     bool
	DefaultValue string
	DisplayOrder int
}

// Table is a user-defined table and its ordered column schema.
type Table struct {
	ID          int64
	Name        string
	Description string
	OwnerID     int64
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	Columns     []Column
}

// Row is one record of data conforming to a table's schema, with
// values stored as text keyed by column name.
type Row struct {
	ID     int64
	Values map[string]string
}

// FindColumnByID returns the column with the given id.
func FindColumnByID(columns []Column, id int64) (Column, bool) {
	for _, c := range columns {
		if c.ID == id {
			return c, true
		}
	}

	return Column{}, false
}

// FindColumnByName returns the column with the given name.
func FindColumnByName(columns []Column, name string) (Column, bool) {
	for _, c := range columns {
		if c.Name == name {
			return c, true
		}
	}

	return Column{}, false
}

// SortColumns returns a copy of columns in presentation order.
func SortColumns(columns []Column) []Column {
	sorted := make([]Column, len(columns))
	copy(sorted, columns)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DisplayOrder < sorted[j].DisplayOrder
	})

	return sorted
}

// nameFormat allows letters (including Turkish ones, which the
// backend accepts), digits, spaces, underscores and dashes, starting
// with a letter.
var nameFormat = regexp.MustCompile(`^[\p{L}][\p{L}0-9 _-]*$`)

func (c Column) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.RuneLength(1, 50), validation.Match(nameFormat)),
		validation.Field(&c.DisplayOrder, validation.Min(0)),
	)
}

func (t Table) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Name, validation.Required, validation.RuneLength(2, 50), validation.Match(nameFormat)),
		validation.Field(&t.Description, validation.RuneLength(0, 500)),
		validation.Field(&t.Columns, validation.By(uniqueDisplayOrders)),
	)
}

// uniqueDisplayOrders enforces the invariant that displayOrder values
// are unique within a table.
func uniqueDisplayOrders(value interface{}) error {
	columns, ok := value.([]Column)
	if !ok {
		return nil
	}

	seen := make(map[int]string, len(columns))
	for _, c := range columns {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}

		if other, dup := seen[c.DisplayOrder]; dup {
			return fmt.Errorf("columns %q and %q share display order %d", other, c.Name, c.DisplayOrder)
		}

		seen[c.DisplayOrder] = c.Name
	}

	return nil
}
