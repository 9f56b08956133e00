package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"skillproof/internal/modkit"
	"skillproof/internal/modkit/repokit"
	"skillproof/internal/platform/config"
	"skillproof/internal/platform/logger"
	"skillproof/internal/platform/store"

	ingestdom "skillproof/internal/services/ingest/domain"
	ingestmod "skillproof/internal/services/ingest/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		AppName: "skillproof-import",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	repokit.MustGuard(context.Background(), st)

	var (
		file       = flag.String("file", "", "CSV file to import (required)")
		table      = flag.String("table", "user_pii", "destination table")
		mode       = flag.String("mode", "create", "create | update | create_update")
		mappingSrc = flag.String("mapping", "", "JSON file mapping CSV headers to columns (required)")
		injectSrc  = flag.String("inject", "", "inline JSON of constant columns, e.g. {\"master_class_name\":\"Intro\"}")
		updateKeys = flag.String("update-keys", "", "comma-separated match columns for user_pii, default email")
	)
	flag.Parse()

	if *file == "" || *mappingSrc == "" {
		log.Fatal("-file and -mapping are required")
	}

	mapping := map[string]string{}
	raw, err := os.ReadFile(*mappingSrc)
	if err != nil {
		log.Fatalf("read -mapping: %v", err)
	}
	if err := json.Unmarshal(raw, &mapping); err != nil {
		log.Fatalf("parse -mapping: %v", err)
	}

	inject := map[string]string{}
	if *injectSrc != "" {
		if err := json.Unmarshal([]byte(*injectSrc), &inject); err != nil {
			log.Fatalf("parse -inject: %v", err)
		}
	}

	var keys []string
	for _, k := range strings.Split(*updateKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open -file: %v", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close input")
		}
	}()

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		Log: *l,
	}

	im := ingestmod.New(deps)
	importer := im.Ports().(ingestmod.Ports).Importer

	stats, err := importer.Import(context.Background(), f, ingestdom.Spec{
		Table:      ingestdom.Table(*table),
		Mapping:    mapping,
		Mode:       ingestdom.Mode(*mode),
		UpdateKeys: keys,
		Inject:     inject,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("import failed")
	}
	if stats.TotalErrors > 0 {
		l.Warn().Int("errors", stats.TotalErrors).Strs("first", stats.Errors).Msg("import finished with errors")
	}
}
