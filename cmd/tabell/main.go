package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tabell-io/tabell-go/pkg/cache"
	"github.com/tabell-io/tabell-go/pkg/config"
	"github.com/tabell-io/tabell-go/pkg/rowcodec"
	"github.com/tabell-io/tabell-go/pkg/schema"
	"github.com/tabell-io/tabell-go/pkg/service"
	"github.com/tabell-io/tabell-go/pkg/session"
	"github.com/tabell-io/tabell-go/pkg/tabell"
)

const usage = `usage: tabell [flags] <command> [args]

commands:
  login <username> <password>
  logout
  register <first> <last> <email> <username> <password>
  confirm-email <token> <email>
  tables
  table <id>
  create-table <definition.yaml>
  update-table <definition.yaml>
  delete-table <id>
  rows <tableId>
  add-row <tableId> <column=value>...
  update-row <tableId> <rowId> <column=value>...
  delete-row <tableId> <rowId>
  stats
`

var (
	configFilePath = flag.String("config", "config.yaml", "path to the configuration file")
	force          = flag.Bool("force", false, "confirm a previously flagged risky table update")
)

func main() {
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if flag.NArg() < 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	parts, err := config.ProcessConfigPath(*configFilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("processing config path")
	}

	cfg, err := config.NewFileSystemLoader().Load(parts.FileName, parts.Path, "TABELL", config.NewDefaultEnvBinder())
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	err = cfg.Validate()
	if err != nil {
		log.Fatal().Err(err).Msg("validating config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing log level")
	}

	log = log.Level(level)

	store, err := session.Open(cfg.Session.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("opening session store")
	}
	defer store.Close()

	cacher, err := cache.New(cfg.Cache.DBPath, cfg.Cache.CacheDuration(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("opening row cache")
	}
	defer cacher.Close()

	codes, err := cfg.API.TypeCodes()
	if err != nil {
		log.Fatal().Err(err).Msg("resolving data type codes")
	}

	contract, err := tabell.NewContract(cfg.API.ContractVersion, codes)
	if err != nil {
		log.Fatal().Err(err).Msg("resolving backend contract")
	}

	client := tabell.New(cfg.API.BaseURL, contract, store,
		tabell.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout()}),
		tabell.WithLogger(log),
	)

	layout := cfg.Display.DatetimeLayout
	if layout == "" {
		layout = rowcodec.DefaultDatetimeLayout
	}

	svc := service.New(client, cacher, rowcodec.NewFormatter(cfg.Display.LanguageTag(), layout), log)

	app := &app{client: client, svc: svc, store: store, log: log}

	err = app.run(context.Background(), flag.Arg(0), flag.Args()[1:])
	if err != nil {
		log.Fatal().Err(err).Msg(flag.Arg(0))
	}
}

type app struct {
	client *tabell.Client
	svc    *service.Service
	store  *session.Store
	log    zerolog.Logger
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.store.Clear()
	case "register":
		return a.register(ctx, args)
	case "confirm-email":
		if len(args) != 2 {
			return fmt.Errorf("confirm-email needs a token and an email address")
		}

		return a.client.ConfirmEmail(ctx, args[0], args[1])
	case "tables":
		return a.tables(ctx)
	case "table":
		return a.table(ctx, args)
	case "create-table":
		return a.createTable(ctx, args)
	case "update-table":
		return a.updateTable(ctx, args)
	case "delete-table":
		id, err := parseID(args, 0, "table id")
		if err != nil {
			return err
		}

		return a.svc.DeleteTable(ctx, id)
	case "rows":
		return a.rows(ctx, args)
	case "add-row":
		return a.addRow(ctx, args)
	case "update-row":
		return a.updateRow(ctx, args)
	case "delete-row":
		return a.deleteRow(ctx, args)
	case "stats":
		return a.stats(ctx)
	}

	fmt.Fprint(os.Stderr, usage)

	return fmt.Errorf("unknown command %q", command)
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("login needs a username and a password")
	}

	res, err := a.client.Login(ctx, tabell.LoginRequest{UserName: args[0], Password: args[1]})
	if err != nil {
		return err
	}

	if res.User != nil {
		err = a.store.SetUser(&session.User{
			ID:             res.User.ID,
			FirstName:      res.User.FirstName,
			LastName:       res.User.LastName,
			Email:          res.User.Email,
			UserName:       res.User.UserName,
			EmailConfirmed: res.User.EmailConfirmed,
		})
		if err != nil {
			return err
		}
	}

	fmt.Printf("logged in as %s\n", args[0])

	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("register needs first name, last name, email, username and password")
	}

	res, err := a.client.Register(ctx, tabell.RegisterRequest{
		FirstName:       args[0],
		LastName:        args[1],
		Email:           args[2],
		UserName:        args[3],
		Password:        args[4],
		ConfirmPassword: args[4],
	})
	if err != nil {
		return err
	}

	fmt.Println(res.Message)

	return nil
}

func (a *app) tables(ctx context.Context) error {
	tables, err := a.svc.Tables(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOLUMNS\tDESCRIPTION")

	for _, t := range tables {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", t.ID, t.Name, len(t.Columns), t.Description)
	}

	return w.Flush()
}

func (a *app) table(ctx context.Context, args []string) error {
	id, err := parseID(args, 0, "table id")
	if err != nil {
		return err
	}

	t, err := a.svc.Table(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("%s (id %d)\n", t.Name, t.ID)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tREQUIRED\tDEFAULT")

	for _, c := range schema.SortColumns(t.Columns) {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\n", c.ID, c.Name, c.Type, c.Required, c.DefaultValue)
	}

	return w.Flush()
}

// tableFile is the yaml table definition consumed by create-table and
// update-table.
type tableFile struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Columns     []struct {
		ID           int64  `yaml:"id"`
		Name         string `yaml:"name"`
		Type         string `yaml:"type"`
		Required     bool   `yaml:"required"`
		DisplayOrder int    `yaml:"display_order"`
		Default      string `yaml:"default"`
	} `yaml:"columns"`
}

func readTableFile(args []string) (*tableFile, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected a table definition file")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, err
	}

	tf := &tableFile{}

	err = yaml.Unmarshal(data, tf)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", args[0], err)
	}

	for _, c := range tf.Columns {
		if schema.ParseDataType(c.Type) == schema.TypeUnknown {
			return nil, fmt.Errorf("column %q: unknown type %q", c.Name, c.Type)
		}
	}

	return tf, nil
}

func (a *app) createTable(ctx context.Context, args []string) error {
	tf, err := readTableFile(args)
	if err != nil {
		return err
	}

	req := tabell.CreateTableRequest{Name: tf.Name, Description: tf.Description}

	for _, c := range tf.Columns {
		req.Columns = append(req.Columns, tabell.ColumnSpec{
			Name:         c.Name,
			Type:         schema.ParseDataType(c.Type),
			Required:     c.Required,
			DisplayOrder: c.DisplayOrder,
			DefaultValue: c.Default,
		})
	}

	t, err := a.svc.CreateTable(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("created table %q with id %d\n", t.Name, t.ID)

	return nil
}

func (a *app) updateTable(ctx context.Context, args []string) error {
	tf, err := readTableFile(args)
	if err != nil {
		return err
	}

	if tf.ID == 0 {
		return fmt.Errorf("the definition file must carry the table id")
	}

	req := tabell.UpdateTableRequest{
		TableID:     tf.ID,
		Name:        tf.Name,
		Description: tf.Description,
		Force:       *force,
	}

	for _, c := range tf.Columns {
		req.Columns = append(req.Columns, tabell.ColumnUpdate{
			ID:           c.ID,
			Name:         c.Name,
			Type:         schema.ParseDataType(c.Type),
			Required:     c.Required,
			DisplayOrder: c.DisplayOrder,
			DefaultValue: c.Default,
		})
	}

	res, err := a.svc.UpdateTable(ctx, req)
	if err != nil {
		return err
	}

	if res.Validation != nil {
		fmt.Println("the update was not applied:")

		for _, issue := range res.Validation.Issues {
			fmt.Printf("  - %s\n", issue)
		}

		for column, issues := range res.Validation.ColumnIssues {
			for _, issue := range issues {
				fmt.Printf("  - %s: %s\n", column, issue)
			}
		}

		if res.Validation.AffectedRowCount > 0 {
			fmt.Printf("%d row(s) would be affected\n", res.Validation.AffectedRowCount)
		}

		fmt.Println("re-run with --force to apply anyway")

		return nil
	}

	fmt.Printf("updated table %q\n", res.Table.Name)

	return nil
}

func (a *app) rows(ctx context.Context, args []string) error {
	tableID, err := parseID(args, 0, "table id")
	if err != nil {
		return err
	}

	td, err := a.svc.Rows(ctx, tableID)
	if err != nil {
		return err
	}

	return a.render(td)
}

func (a *app) render(td *tabell.TableData) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	for _, line := range a.svc.Render(td) {
		fmt.Fprintln(w, strings.Join(line, "\t"))
	}

	return w.Flush()
}

// parseForm turns column=value arguments into a form keyed by column
// id, resolving names against the table's schema.
func parseForm(args []string, columns []schema.Column) (map[int64]string, error) {
	form := map[int64]string{}

	for _, arg := range args {
		name, value, found := strings.Cut(arg, "=")
		if !found {
			return nil, fmt.Errorf("expected column=value, got %q", arg)
		}

		col, ok := schema.FindColumnByName(columns, name)
		if !ok {
			return nil, fmt.Errorf("no column named %q", name)
		}

		form[col.ID] = value
	}

	return form, nil
}

func (a *app) addRow(ctx context.Context, args []string) error {
	tableID, err := parseID(args, 0, "table id")
	if err != nil {
		return err
	}

	td, err := a.svc.Rows(ctx, tableID)
	if err != nil {
		return err
	}

	form, err := parseForm(args[1:], td.Columns)
	if err != nil {
		return err
	}

	td, err = a.svc.AddRow(ctx, tableID, form)
	if err != nil {
		return err
	}

	return a.render(td)
}

func (a *app) updateRow(ctx context.Context, args []string) error {
	tableID, err := parseID(args, 0, "table id")
	if err != nil {
		return err
	}

	rowID, err := parseID(args, 1, "row id")
	if err != nil {
		return err
	}

	td, err := a.svc.Rows(ctx, tableID)
	if err != nil {
		return err
	}

	form, err := parseForm(args[2:], td.Columns)
	if err != nil {
		return err
	}

	td, err = a.svc.UpdateRow(ctx, tableID, rowID, form)
	if err != nil {
		return err
	}

	return a.render(td)
}

func (a *app) deleteRow(ctx context.Context, args []string) error {
	tableID, err := parseID(args, 0, "table id")
	if err != nil {
		return err
	}

	rowID, err := parseID(args, 1, "row id")
	if err != nil {
		return err
	}

	td, err := a.svc.DeleteRow(ctx, tableID, rowID)
	if err != nil {
		return err
	}

	return a.render(td)
}

func (a *app) stats(ctx context.Context) error {
	stats, err := a.svc.Stats(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "tables\t%d\n", stats.TotalTables)
	fmt.Fprintf(w, "records\t%d\n", stats.TotalRecords)
	fmt.Fprintf(w, "tables this month\t%d\n", stats.TablesThisMonth)
	fmt.Fprintf(w, "active tables\t%d\n", stats.ActiveTables)

	return w.Flush()
}

func parseID(args []string, index int, what string) (int64, error) {
	if len(args) <= index {
		return 0, fmt.Errorf("missing %s", what)
	}

	id, err := strconv.ParseInt(args[index], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be numeric, got %q", what, args[index])
	}

	return id, nil
}
