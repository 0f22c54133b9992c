package main

import (
	"net/http"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/tabell-io/tabell-go/pkg/emulator"
	"github.com/tabell-io/tabell-go/pkg/schema"
)

var (
	port = flag.Int("port", 8080, "port to run the emulator on")
	seed = flag.Bool("seed", false, "seed a demo user and table")
)

func main() {
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	e := emulator.New(log)

	if *seed {
		token := e.SeedUser("demo", "demo")

		t := e.SeedTable(schema.Table{
			Name:        "People",
			Description: "demo table",
			Columns: []schema.Column{
				{Name: "Name", Type: schema.TypeVarchar, Required: true, DisplayOrder: 1},
				{Name: "Age", Type: schema.TypeInt, DisplayOrder: 2},
				{Name: "Balance", Type: schema.TypeDecimal, DisplayOrder: 3},
				{Name: "Joined", Type: schema.TypeDatetime, DisplayOrder: 4},
			},
		}, []map[string]string{
			{"Name": "Ada", "Age": "36", "Balance": "1200.5", "Joined": "2024-01-15"},
			{"Name": "Linus", "Age": "54"},
		})

		log.Info().
			Str("user", "demo").
			Str("password", "demo").
			Str("token", token).
			Int64("table_id", t.ID).
			Msg("seeded demo data")
	}

	log.Info().Msgf("emulator starting on port %d", *port)

	err := http.ListenAndServe(":"+strconv.Itoa(*port), e)
	if err != nil {
		log.Fatal().Err(err).Msg("starting emulator")
	}
}
