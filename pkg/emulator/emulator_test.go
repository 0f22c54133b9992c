package emulator

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabell-io/tabell-go/pkg/schema"
)

func seedAssessTable(t *testing.T, e *Emulator, rows []map[string]string) *schema.Table {
	t.Helper()

	return e.SeedTable(schema.Table{
		Name: "People",
		Columns: []schema.Column{
			{Name: "Name", Type: schema.TypeVarchar, Required: true, DisplayOrder: 1},
			{Name: "Nick", Type: schema.TypeVarchar, DisplayOrder: 2},
			{Name: "Balance", Type: schema.TypeDecimal, DisplayOrder: 3},
		},
	}, rows)
}

func keep(c schema.Column) schema.Column {
	return schema.Column{
		ID:           c.ID,
		Name:         c.Name,
		Type:         c.Type,
		Required:     c.Required,
		DisplayOrder: c.DisplayOrder,
		DefaultValue: c.DefaultValue,
	}
}

func TestAssessUnchangedSchema(t *testing.T) {
	e := New(zerolog.Nop())

	seeded := seedAssessTable(t, e, []map[string]string{{"Name": "Ada"}})

	next := make([]schema.Column, len(seeded.Columns))
	for i, c := range seeded.Columns {
		next[i] = keep(c)
	}

	v := e.assess(e.tables[seeded.ID], next)

	assert.True(t, v.IsValid)
	assert.False(t, v.RequiresForceUpdate)
	assert.Zero(t, v.AffectedRowCount)
}

func TestAssessRemovedColumn(t *testing.T) {
	e := New(zerolog.Nop())

	seeded := seedAssessTable(t, e, []map[string]string{{"Name": "Ada", "Nick": "countess"}})

	var next []schema.Column
	for _, c := range seeded.Columns {
		if c.Name == "Nick" {
			continue
		}

		next = append(next, keep(c))
	}

	v := e.assess(e.tables[seeded.ID], next)

	assert.True(t, v.HasStructuralChanges)
	assert.True(t, v.RequiresForceUpdate)
	assert.False(t, v.IsValid)
	require.NotEmpty(t, v.Issues)
	assert.Contains(t, v.Issues[0], "Nick")
}

func TestAssessRemovedColumnOnEmptyTable(t *testing.T) {
	e := New(zerolog.Nop())

	seeded := seedAssessTable(t, e, nil)

	var next []schema.Column
	for _, c := range seeded.Columns {
		if c.Name == "Nick" {
			continue
		}

		next = append(next, keep(c))
	}

	v := e.assess(e.tables[seeded.ID], next)

	// Structural changes without any stored data apply directly.
	assert.True(t, v.HasStructuralChanges)
	assert.False(t, v.RequiresForceUpdate)
	assert.True(t, v.IsValid)
}

func TestAssessRequiredAdded(t *testing.T) {
	e := New(zerolog.Nop())

	seeded := seedAssessTable(t, e, []map[string]string{
		{"Name": "Ada", "Nick": "countess"},
		{"Name": "Linus"},
	})

	next := make([]schema.Column, len(seeded.Columns))
	for i, c := range seeded.Columns {
		next[i] = keep(c)
		if c.Name == "Nick" {
			next[i].Required = true
		}
	}

	v := e.assess(e.tables[seeded.ID], next)

	assert.True(t, v.HasStructuralChanges)
	assert.True(t, v.HasDataCompatibilityIssues)
	assert.True(t, v.RequiresForceUpdate)
	assert.Equal(t, 1, v.AffectedRowCount)
	assert.Contains(t, v.ColumnIssues, "Nick")
}

func TestApplyScrubsIncompatibleValues(t *testing.T) {
	e := New(zerolog.Nop())

	seeded := seedAssessTable(t, e, []map[string]string{
		{"Name": "Ada", "Balance": "1200.5"},
		{"Name": "Linus", "Balance": "7"},
	})

	next := make([]schema.Column, len(seeded.Columns))
	for i, c := range seeded.Columns {
		next[i] = keep(c)
		if c.Name == "Balance" {
			next[i].Type = schema.TypeInt
		}
	}

	stored := e.tables[seeded.ID]

	e.apply(stored, updateTableIn{TableName: "People"}, next)

	balance, ok := schema.FindColumnByName(stored.Columns, "Balance")
	require.True(t, ok)
	assert.Equal(t, schema.TypeInt, balance.Type)

	values := []string{}
	for _, rec := range e.rows[seeded.ID] {
		values = append(values, rec.values[balance.ID])
	}

	assert.ElementsMatch(t, []string{"", "7"}, values)
}
