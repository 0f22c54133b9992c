// Package tabell provides the client for the Tabell dynamic-table
// service: authentication, table and column CRUD, and row CRUD. All
// failures are classified into the pkg/errs taxonomy; the caller
// never sees raw transport errors.
package tabell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tabell-io/tabell-go/pkg/errs"
	"github.com/tabell-io/tabell-go/pkg/schema"
)

// RequestIDHeader carries a fresh correlation id on every request.
const RequestIDHeader = "X-Request-Id"

// TokenSource supplies the bearer token attached per request and is
// told to forget it when the backend rejects it. Implemented by
// session.Store.
type TokenSource interface {
	Token() (string, error)
	SetToken(token string) error
	Clear() error
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.c = c
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(client *Client) {
		client.log = log
	}
}

// Client talks to one Tabell backend. Construct it explicitly and
// pass it to whoever needs it; there is no package-level instance and
// no shared mutable header state.
type Client struct {
	c        *http.Client
	baseURL  string
	contract Contract
	tokens   TokenSource
	log      zerolog.Logger
	requests *requestMetrics
}

func New(baseURL string, contract Contract, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		c:        http.DefaultClient,
		baseURL:  strings.TrimRight(baseURL, "/"),
		contract: contract,
		tokens:   tokens,
		log:      zerolog.Nop(),
		requests: newRequestMetrics(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// send performs one HTTP exchange and returns the status and body.
// The returned error covers request construction and transport
// failures only; HTTP error statuses are the caller's to classify.
func (c *Client) send(ctx context.Context, op errs.Op, method, path string, body any) (int, []byte, error) {
	var reader io.Reader

	if body != nil {
		buf := &bytes.Buffer{}

		err := json.NewEncoder(buf).Encode(body)
		if err != nil {
			return 0, nil, errs.E(op, errs.InvalidRequest, fmt.Errorf("encoding request body: %w", err))
		}

		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, errs.E(op, errs.InvalidRequest, fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.New().String())

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token()
	if err != nil {
		return 0, nil, errs.E(op, err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.c.Do(req)
	if err != nil {
		return 0, nil, classifyTransport(op, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, errs.E(op, errs.Unavailable, fmt.Errorf("reading response: %w", err))
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Msg("request_done")

	return res.StatusCode, data, nil
}

// do is send plus status classification and response decoding.
func (c *Client) do(ctx context.Context, op errs.Op, method, path string, body, into any) error {
	status, data, err := c.send(ctx, op, method, path, body)
	if err != nil {
		c.requests.count(op, err)
		return err
	}

	if status >= http.StatusBadRequest {
		err = c.classifyStatus(op, status, data)
		c.requests.count(op, err)
		return err
	}

	if into != nil {
		err = c.contract.Unwrap(data, into)
		if err != nil {
			err = errs.E(op, err)
			c.requests.count(op, err)
			return err
		}
	}

	c.requests.count(op, nil)
	return nil
}

// Login authenticates and persists the returned token via the token
// source. The auth endpoints respond with a flat shape in every
// contract generation, so no envelope unwrapping happens here.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	const op errs.Op = "tabell.Client.Login"

	status, data, err := c.send(ctx, op, http.MethodPost, "/Auth/login", req)
	if err != nil {
		c.requests.count(op, err)
		return nil, err
	}

	if status >= http.StatusBadRequest {
		err = c.classifyStatus(op, status, data)
		c.requests.count(op, err)
		return nil, err
	}

	res := wireAuthResponse{}

	err = json.Unmarshal(data, &res)
	if err != nil {
		err = errs.E(op, fmt.Errorf("decoding login response: %w", err))
		c.requests.count(op, err)
		return nil, err
	}

	if !res.Success || res.Token == "" {
		err = errs.E(op, errs.Unauthenticated, res.Message)
		c.requests.count(op, err)
		return nil, err
	}

	err = c.tokens.SetToken(res.Token)
	if err != nil {
		c.requests.count(op, err)
		return nil, errs.E(op, err)
	}

	c.requests.count(op, nil)

	return &LoginResult{Token: res.Token, User: res.User, Message: res.Message}, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	const op errs.Op = "tabell.Client.Register"

	status, data, err := c.send(ctx, op, http.MethodPost, "/Auth/register", req)
	if err != nil {
		c.requests.count(op, err)
		return nil, err
	}

	if status >= http.StatusBadRequest {
		err = c.classifyStatus(op, status, data)
		c.requests.count(op, err)
		return nil, err
	}

	res := wireAuthResponse{}

	err = json.Unmarshal(data, &res)
	if err != nil {
		err = errs.E(op, fmt.Errorf("decoding register response: %w", err))
		c.requests.count(op, err)
		return nil, err
	}

	c.requests.count(op, nil)

	return &RegisterResult{
		Message:                   res.Message,
		RequiresEmailConfirmation: res.RequiresEmailConfirmation,
	}, nil
}

func (c *Client) ConfirmEmail(ctx context.Context, token, email string) error {
	const op errs.Op = "tabell.Client.ConfirmEmail"

	body := map[string]string{"token": token, "email": email}

	status, data, err := c.send(ctx, op, http.MethodPost, "/Auth/confirm-email", body)
	if err != nil {
		c.requests.count(op, err)
		return err
	}

	if status >= http.StatusBadRequest {
		err = c.classifyStatus(op, status, data)
		c.requests.count(op, err)
		return err
	}

	c.requests.count(op, nil)
	return nil
}

// Tables lists the caller's tables.
func (c *Client) Tables(ctx context.Context) ([]schema.Table, error) {
	const op errs.Op = "tabell.Client.Tables"

	var ws []wireTable

	err := c.do(ctx, op, http.MethodGet, "/Tables", nil, &ws)
	if err != nil {
		return nil, err
	}

	tc := c.contract.TypeCodes()

	tables := make([]schema.Table, len(ws))
	for i, w := range ws {
		tables[i] = tableFromWire(tc, w)
	}

	return tables, nil
}

// Table fetches one table and its column schema.
func (c *Client) Table(ctx context.Context, id int64) (*schema.Table, error) {
	const op errs.Op = "tabell.Client.Table"

	w := wireTable{}

	err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/Tables/%d", id), nil, &w)
	if err != nil {
		return nil, err
	}

	t := tableFromWire(c.contract.TypeCodes(), w)

	return &t, nil
}

func (c *Client) CreateTable(ctx context.Context, req CreateTableRequest) (*schema.Table, error) {
	const op errs.Op = "tabell.Client.CreateTable"

	specs, err := columnSpecsToWire(c.contract.TypeCodes(), req.Columns)
	if err != nil {
		return nil, errs.E(op, errs.InvalidRequest, err)
	}

	body := wireCreateTable{
		TableName:   req.Name,
		Description: req.Description,
		Columns:     specs,
	}

	w := wireTable{}

	err = c.do(ctx, op, http.MethodPost, "/Tables", body, &w)
	if err != nil {
		return nil, err
	}

	t := tableFromWire(c.contract.TypeCodes(), w)

	return &t, nil
}

// UpdateTable applies a table update. When the backend flags the
// change as risky and req.Force is unset, the returned result carries
// the validation outcome instead of a table; resubmitting with Force
// set is the caller's explicit decision.
func (c *Client) UpdateTable(ctx context.Context, req UpdateTableRequest) (*UpdateTableResult, error) {
	const op errs.Op = "tabell.Client.UpdateTable"

	body, err := c.updateTableBody(op, req)
	if err != nil {
		return nil, err
	}

	status, data, err := c.send(ctx, op, http.MethodPut, fmt.Sprintf("/Tables/%d", req.TableID), body)
	if err != nil {
		c.requests.count(op, err)
		return nil, err
	}

	if status == http.StatusConflict {
		v := &TableValidation{}

		err = c.contract.Unwrap(data, v)
		if err != nil {
			err = errs.E(op, err)
			c.requests.count(op, err)
			return nil, err
		}

		c.requests.count(op, nil)
		return &UpdateTableResult{Validation: v}, nil
	}

	if status >= http.StatusBadRequest {
		err = c.classifyStatus(op, status, data)
		c.requests.count(op, err)
		return nil, err
	}

	w := wireTable{}

	err = c.contract.Unwrap(data, &w)
	if err != nil {
		err = errs.E(op, err)
		c.requests.count(op, err)
		return nil, err
	}

	c.requests.count(op, nil)

	t := tableFromWire(c.contract.TypeCodes(), w)

	return &UpdateTableResult{Table: &t}, nil
}

// ValidateTableUpdate asks the backend to assess an update without
// applying it.
func (c *Client) ValidateTableUpdate(ctx context.Context, req UpdateTableRequest) (*TableValidation, error) {
	const op errs.Op = "tabell.Client.ValidateTableUpdate"

	body, err := c.updateTableBody(op, req)
	if err != nil {
		return nil, err
	}

	v := &TableValidation{}

	err = c.do(ctx, op, http.MethodPost, fmt.Sprintf("/Tables/%d/validate", req.TableID), body, v)
	if err != nil {
		return nil, err
	}

	return v, nil
}

func (c *Client) updateTableBody(op errs.Op, req UpdateTableRequest) (*wireUpdateTable, error) {
	updates, err := columnUpdatesToWire(c.contract.TypeCodes(), req.Columns, req.Force)
	if err != nil {
		return nil, errs.E(op, errs.InvalidRequest, err)
	}

	return &wireUpdateTable{
		TableID:     req.TableID,
		TableName:   req.Name,
		Description: req.Description,
		Columns:     updates,
	}, nil
}

// DeleteTable removes a table; the backend cascades to its rows.
func (c *Client) DeleteTable(ctx context.Context, id int64) error {
	const op errs.Op = "tabell.Client.DeleteTable"

	return c.do(ctx, op, http.MethodDelete, fmt.Sprintf("/Tables/%d", id), nil, nil)
}

// Rows fetches the full current row set of a table.
func (c *Client) Rows(ctx context.Context, tableID int64) (*TableData, error) {
	const op errs.Op = "tabell.Client.Rows"

	w := wireTableData{}

	err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/TableData/%d", tableID), nil, &w)
	if err != nil {
		return nil, err
	}

	return tableDataFromWire(c.contract.TypeCodes(), w), nil
}

// AddRow creates a row from form values keyed by column id. The
// columns must be the table's current schema; they determine how the
// values are keyed on the wire.
func (c *Client) AddRow(ctx context.Context, tableID int64, form map[int64]string, columns []schema.Column) error {
	const op errs.Op = "tabell.Client.AddRow"

	values, err := c.contract.ColumnValues(form, columns)
	if err != nil {
		return errs.E(op, errs.InvalidRequest, err)
	}

	body := wireRowWrite{TableID: tableID, ColumnValues: values}

	return c.do(ctx, op, http.MethodPost, "/TableData", body, nil)
}

func (c *Client) UpdateRow(ctx context.Context, tableID, rowID int64, form map[int64]string, columns []schema.Column) error {
	const op errs.Op = "tabell.Client.UpdateRow"

	values, err := c.contract.ColumnValues(form, columns)
	if err != nil {
		return errs.E(op, errs.InvalidRequest, err)
	}

	body := wireRowWrite{TableID: tableID, ColumnValues: values}

	return c.do(ctx, op, http.MethodPut, fmt.Sprintf("/TableData/%d", rowID), body, nil)
}

// DeleteRow removes one row. Deleting a row that is already gone
// fails with NotExist, it is not a silent success.
func (c *Client) DeleteRow(ctx context.Context, tableID, rowID int64) error {
	const op errs.Op = "tabell.Client.DeleteRow"

	return c.do(ctx, op, http.MethodDelete, fmt.Sprintf("/TableData/%d?tableId=%d", rowID, tableID), nil, nil)
}

// Stats fetches the dashboard summary.
func (c *Client) Stats(ctx context.Context) (*DashboardStats, error) {
	const op errs.Op = "tabell.Client.Stats"

	stats := &DashboardStats{}

	err := c.do(ctx, op, http.MethodGet, "/Dashboard/stats", nil, stats)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
