package tabell

import (
	"github.com/tabell-io/tabell-go/pkg/schema"
)

// User is the profile the backend returns on login.
type User struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	UserName       string `json:"userName"`
	EmailConfirmed bool   `json:"emailConfirmed"`
}

type LoginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token   string
	User    *User
	Message string
}

type RegisterRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	UserName        string `json:"userName"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type RegisterResult struct {
	Message                   string
	RequiresEmailConfirmation bool
}

// ColumnSpec describes a column of a table being created.
type ColumnSpec struct {
	Name         string
	Type         schema.DataType
	Required     bool
	DisplayOrder int
	DefaultValue string
}

type CreateTableRequest struct {
	Name        string
	Description string
	Columns     []ColumnSpec
}

// ColumnUpdate describes one column of a table update. A zero ID
// marks a new column; a non-zero ID targets an existing one. Columns
// of the stored table absent from the update are deleted server-side.
type ColumnUpdate struct {
	ID           int64
	Name         string
	Type         schema.DataType
	Required     bool
	DisplayOrder int
	DefaultValue string
}

type UpdateTableRequest struct {
	TableID     int64
	Name        string
	Description string
	Columns     []ColumnUpdate
	// Force confirms a previously flagged risky update. It is only
	// ever set by an explicit caller decision, never automatically.
	Force bool
}

// TableValidation is the server-computed risk assessment of a table
// update. When RequiresForceUpdate is set the update was not applied;
// the caller may resubmit with Force set.
type TableValidation struct {
	IsValid                    bool                `json:"isValid"`
	HasStructuralChanges       bool                `json:"hasStructuralChanges"`
	HasDataCompatibilityIssues bool                `json:"hasDataCompatibilityIssues"`
	RequiresForceUpdate        bool                `json:"requiresForceUpdate"`
	Issues                     []string            `json:"issues"`
	DataIssues                 []string            `json:"dataIssues"`
	ColumnIssues               map[string][]string `json:"columnIssues"`
	AffectedRowCount           int                 `json:"affectedRowCount"`
}

// UpdateTableResult carries either the applied table or the
// validation outcome that blocked the update, never both.
type UpdateTableResult struct {
	Table      *schema.Table
	Validation *TableValidation
}

// TableData is the full row set of a table as currently stored,
// together with the schema it conforms to.
type TableData struct {
	TableID   int64
	TableName string
	Columns   []schema.Column
	Rows      []schema.Row
}

type DashboardStats struct {
	TotalTables     int `json:"totalTables"`
	TotalRecords    int `json:"totalRecords"`
	TablesThisMonth int `json:"tablesThisMonth"`
	ActiveTables    int `json:"activeTables"`
}
