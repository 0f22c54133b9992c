// Package rowcodec converts row values between the UI-friendly form
// representation (keyed by column id) and the wire representation
// (keyed by column name), and formats and validates scalar values
// against the column's declared data type. Every operation is a pure
// function over its inputs.
package rowcodec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tabell-io/tabell-go/pkg/schema"
)

// Encode maps form values keyed by column id to wire values keyed by
// column name. Empty and absent values are omitted rather than sent
// as explicit empty strings, and no key outside columns is ever
// emitted.
func Encode(form map[int64]string, columns []schema.Column) map[string]string {
	out := make(map[string]string, len(columns))

	for _, col := range columns {
		value, ok := form[col.ID]
		if !ok || value == "" {
			continue
		}

		out[col.Name] = value
	}

	return out
}

// Decode maps wire values keyed by column name back to form values
// keyed by column id. Every column gets an entry; columns absent from
// the wire payload decode to the empty string.
func Decode(values map[string]string, columns []schema.Column) map[int64]string {
	out := make(map[int64]string, len(columns))

	for _, col := range columns {
		out[col.ID] = values[col.Name]
	}

	return out
}

// ParseDatetime parses the datetime representations the backend has
// been seen to emit.
func ParseDatetime(value string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized datetime value %q", value)
}

// Reason identifies why a value failed validation against its column.
type Reason int

const (
	RequiredFieldMissing Reason = iota + 1
	NotANumber
	NotADecimal
	NotADate
	TooLong
)

// maxVarcharLen is the backend's VARCHAR storage limit.
const maxVarcharLen = 255

// FieldError is a single validation failure for one column.
type FieldError struct {
	Column string
	Reason Reason
}

func (e *FieldError) Error() string {
	switch e.Reason {
	case RequiredFieldMissing:
		return fmt.Sprintf("%s is required", e.Column)
	case NotANumber:
		return fmt.Sprintf("%s must be an integer", e.Column)
	case NotADecimal:
		return fmt.Sprintf("%s must be a decimal number", e.Column)
	case NotADate:
		return fmt.Sprintf("%s must be a valid date", e.Column)
	case TooLong:
		return fmt.Sprintf("%s must be at most %d characters", e.Column, maxVarcharLen)
	}

	return fmt.Sprintf("%s is invalid", e.Column)
}

// FieldErrors aggregates every failed column of a row.
type FieldErrors []*FieldError

func (e FieldErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}

	return strings.Join(msgs, ", ")
}

// Fields returns the failures keyed by column name.
func (e FieldErrors) Fields() map[string][]string {
	fields := make(map[string][]string, len(e))
	for _, fe := range e {
		fields[fe.Column] = append(fields[fe.Column], fe.Error())
	}

	return fields
}

// Validate checks a single value against its column. A nil return
// means the value passes. Non-required empty values always pass, and
// values for columns of unknown type are treated as opaque text.
func Validate(value string, col schema.Column) *FieldError {
	if value == "" {
		if col.Required {
			return &FieldError{Column: col.Name, Reason: RequiredFieldMissing}
		}

		return nil
	}

	switch col.Type {
	case schema.TypeInt:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return &FieldError{Column: col.Name, Reason: NotANumber}
		}
	case schema.TypeDecimal:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return &FieldError{Column: col.Name, Reason: NotADecimal}
		}
	case schema.TypeDatetime:
		if _, err := ParseDatetime(value); err != nil {
			return &FieldError{Column: col.Name, Reason: NotADate}
		}
	case schema.TypeVarchar:
		if len([]rune(value)) > maxVarcharLen {
			return &FieldError{Column: col.Name, Reason: TooLong}
		}
	}

	return nil
}

// ValidateRow checks every column of a row and aggregates all
// failures. A nil return means the row passes.
func ValidateRow(form map[int64]string, columns []schema.Column) FieldErrors {
	var failed FieldErrors

	for _, col := range schema.SortColumns(columns) {
		if fe := Validate(form[col.ID], col); fe != nil {
			failed = append(failed, fe)
		}
	}

	if len(failed) == 0 {
		return nil
	}

	return failed
}
