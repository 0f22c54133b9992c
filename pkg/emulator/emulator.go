// Package emulator provides an in-memory Tabell backend for tests and
// local development. It speaks the enveloped contract generation with
// 1-based data-type codes and enforces the same update rules as the
// real service, including the forced-update handshake on risky column
// changes.
package emulator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tabell-io/tabell-go/pkg/errs"
	"github.com/tabell-io/tabell-go/pkg/requestlogger"
	"github.com/tabell-io/tabell-go/pkg/schema"
	"github.com/tabell-io/tabell-go/pkg/transport"
)

type account struct {
	password  string
	confirmed bool
	user      user
}

type user struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	UserName       string `json:"userName"`
	EmailConfirmed bool   `json:"emailConfirmed"`
}

// row stores values keyed by column id, the canonical storage form.
type row struct {
	id     int64
	values map[int64]string
}

type Emulator struct {
	router *chi.Mux

	mu       sync.Mutex
	accounts map[string]*account
	sessions map[string]string
	tables   map[int64]*schema.Table
	rows     map[int64][]*row
	nextID   int64

	err error

	codes schema.TypeCodes
	log   zerolog.Logger

	server *httptest.Server
}

func New(log zerolog.Logger) *Emulator {
	e := &Emulator{
		router:   chi.NewRouter(),
		accounts: map[string]*account{},
		sessions: map[string]string{},
		tables:   map[int64]*schema.Table{},
		rows:     map[int64][]*row{},
		codes:    schema.OneBasedTypeCodes(),
		log:      log,
	}

	e.routes()

	return e
}

func (e *Emulator) routes() {
	e.router.Use(requestlogger.Middleware(e.log))

	e.router.Post("/Auth/login", transport.For(e.login).RequestFromJSON().Build(e.log))
	e.router.Post("/Auth/register", transport.For(e.register).RequestFromJSON().Build(e.log))
	e.router.Post("/Auth/confirm-email", transport.For(e.confirmEmail).RequestFromJSON().Build(e.log))

	e.router.Group(func(r chi.Router) {
		r.Use(e.authenticate)

		r.Get("/Tables", transport.For(e.listTables).Build(e.log))
		r.Post("/Tables", transport.For(e.createTable).RequestFromJSON().Build(e.log))
		r.Get("/Tables/{id}", transport.For(e.getTable).Build(e.log))
		r.Put("/Tables/{id}", transport.For(e.updateTable).RequestFromJSON().Build(e.log))
		r.Delete("/Tables/{id}", transport.For(e.deleteTable).Build(e.log))
		r.Post("/Tables/{id}/validate", transport.For(e.validateTable).RequestFromJSON().Build(e.log))

		r.Get("/TableData/{tableID}", transport.For(e.listRows).Build(e.log))
		r.Post("/TableData", transport.For(e.createRow).RequestFromJSON().Build(e.log))
		r.Put("/TableData/{rowID}", transport.For(e.updateRow).RequestFromJSON().Build(e.log))
		r.Delete("/TableData/{rowID}", transport.For(e.deleteRow).Build(e.log))

		r.Get("/Dashboard/stats", transport.For(e.stats).Build(e.log))
	})

	e.router.NotFound(e.notFound)
}

func (e *Emulator) Run() string {
	e.log.Info().Msg("starting tabell emulator")

	e.server = httptest.NewServer(e)

	return e.server.URL
}

func (e *Emulator) Reset() {
	e.mu.Lock()
	e.accounts = map[string]*account{}
	e.sessions = map[string]string{}
	e.tables = map[int64]*schema.Table{}
	e.rows = map[int64][]*row{}
	e.mu.Unlock()

	if e.server != nil {
		e.server.Close()
	}
}

// SetError makes the next request fail with an internal error.
func (e *Emulator) SetError(err error) {
	e.err = err
}

func (e *Emulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.router.ServeHTTP(w, r)
}

func (e *Emulator) notFound(w http.ResponseWriter, r *http.Request) {
	request, err := httputil.DumpRequest(r, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	e.log.Warn().Str("request", string(request)).Msg("not found")

	errs.HTTPErrorResponse(w, e.log, errs.E(errs.NotExist, "no such endpoint"))
}

// takeErr consumes an injected error, if any.
func (e *Emulator) takeErr() error {
	if e.err == nil {
		return nil
	}

	err := e.err
	e.err = nil

	return errs.E(errs.Internal, err)
}

// Seeding helpers for tests.

// SeedUser registers a confirmed account and returns a valid token
// for it.
func (e *Emulator) SeedUser(userName, password string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.accounts[userName] = &account{
		password:  password,
		confirmed: true,
		user: user{
			ID:             uuid.New().String(),
			UserName:       userName,
			Email:          userName + "@example.com",
			EmailConfirmed: true,
		},
	}

	token := uuid.New().String()
	e.sessions[token] = userName

	return token
}

// SeedTable stores a table and its rows directly, bypassing the API.
// Column and row ids are assigned; the stored table is returned.
func (e *Emulator) SeedTable(t schema.Table, rowValues []map[string]string) *schema.Table {
	e.mu.Lock()
	defer e.mu.Unlock()

	t.ID = e.allocID()
	t.CreatedAt = time.Now().UTC()

	for i := range t.Columns {
		t.Columns[i].ID = e.allocID()
	}

	t.Columns = schema.SortColumns(t.Columns)

	stored := t
	e.tables[t.ID] = &stored

	for _, values := range rowValues {
		r := &row{id: e.allocID(), values: map[int64]string{}}

		for name, value := range values {
			col, ok := schema.FindColumnByName(stored.Columns, name)
			if !ok {
				continue
			}

			r.values[col.ID] = value
		}

		e.rows[t.ID] = append(e.rows[t.ID], r)
	}

	return &stored
}

// RevokeToken invalidates a previously issued token, so that the next
// request carrying it gets a 401.
func (e *Emulator) RevokeToken(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.sessions, token)
}

// RowCount reports the stored rows of a table.
func (e *Emulator) RowCount(tableID int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.rows[tableID])
}

func (e *Emulator) allocID() int64 {
	e.nextID++

	return e.nextID
}

// Auth.

type authOut struct {
	Success                   bool   `json:"success"`
	Message                   string `json:"message"`
	Token                     string `json:"token,omitempty"`
	User                      *user  `json:"user,omitempty"`
	RequiresEmailConfirmation bool   `json:"requiresEmailConfirmation,omitempty"`
}

type loginIn struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

func (e *Emulator) login(_ context.Context, _ *http.Request, in loginIn) (*authOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acc, ok := e.accounts[in.UserName]
	if !ok || acc.password != in.Password {
		return nil, errs.E(errs.Unauthenticated, "invalid username or password")
	}

	if !acc.confirmed {
		return nil, errs.E(errs.Unauthorized, "email address not confirmed")
	}

	token := uuid.New().String()
	e.sessions[token] = in.UserName

	u := acc.user

	return &authOut{Success: true, Message: "login successful", Token: token, User: &u}, nil
}

type registerIn struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	UserName        string `json:"userName"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (e *Emulator) register(_ context.Context, _ *http.Request, in registerIn) (*authOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	if in.UserName == "" || in.Password == "" {
		return nil, errs.E(errs.Validation, "username and password are required")
	}

	if in.Password != in.ConfirmPassword {
		return nil, errs.E(errs.Validation, errs.Fields(map[string][]string{
			"confirmPassword": {"passwords do not match"},
		}), "passwords do not match")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.accounts[in.UserName]; ok {
		return nil, errs.E(errs.Exist, "username is taken")
	}

	e.accounts[in.UserName] = &account{
		password: in.Password,
		user: user{
			ID:        uuid.New().String(),
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Email:     in.Email,
			UserName:  in.UserName,
		},
	}

	return &authOut{
		Success:                   true,
		Message:                   "registered, confirm your email address",
		RequiresEmailConfirmation: true,
	}, nil
}

type confirmEmailIn struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

func (e *Emulator) confirmEmail(_ context.Context, _ *http.Request, in confirmEmailIn) (*authOut, error) {
	if err := e.takeErr(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, acc := range e.accounts {
		if acc.user.Email == in.Email {
			acc.confirmed = true
			acc.user.EmailConfirmed = true

			return &authOut{Success: true, Message: "email confirmed"}, nil
		}
	}

	return nil, errs.E(errs.NotExist, "no account with that email address")
}

func (e *Emulator) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			errs.HTTPErrorResponse(w, e.log, errs.E(errs.Unauthenticated, "missing bearer token"))

			return
		}

		e.mu.Lock()
		_, ok := e.sessions[header[len(prefix):]]
		e.mu.Unlock()

		if !ok {
			errs.HTTPErrorResponse(w, e.log, errs.E(errs.Unauthenticated, "invalid or expired token"))

			return
		}

		next.ServeHTTP(w, r)
	})
}

// Envelope responses.

type envelopeOut struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`

	status int
}

func (o *envelopeOut) StatusCode() int {
	if o.status != 0 {
		return o.status
	}

	return http.StatusOK
}

func ok(data any) *envelopeOut {
	return &envelopeOut{Success: true, Data: data}
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errs.E(errs.InvalidRequest, fmt.Errorf("parsing %s: %w", name, err))
	}

	return id, nil
}
