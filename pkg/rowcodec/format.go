package rowcodec

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tabell-io/tabell-go/pkg/schema"
)

// Placeholder is what absent values render as.
const Placeholder = "-"

// DefaultDatetimeLayout is the display layout used when the
// deployment does not configure one.
const DefaultDatetimeLayout = "02.01.2006 15:04"

// Formatter renders stored text values for display according to the
// column's declared data type and the configured locale.
type Formatter struct {
	printer *message.Printer
	layout  string
}

func NewFormatter(tag language.Tag, datetimeLayout string) *Formatter {
	if datetimeLayout == "" {
		datetimeLayout = DefaultDatetimeLayout
	}

	return &Formatter{
		printer: message.NewPrinter(tag),
		layout:  datetimeLayout,
	}
}

// FormatForDisplay renders value for presentation. Absent values
// render as the placeholder; parse failures fall back to the raw
// value rather than erroring, and unknown types render as plain text.
func (f *Formatter) FormatForDisplay(value string, t schema.DataType) string {
	if value == "" {
		return Placeholder
	}

	switch t {
	case schema.TypeDatetime:
		ts, err := ParseDatetime(value)
		if err != nil {
			return value
		}

		return ts.Format(f.layout)
	case schema.TypeDecimal:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return value
		}

		return f.printer.Sprintf("%.2f", v)
	default:
		return value
	}
}
