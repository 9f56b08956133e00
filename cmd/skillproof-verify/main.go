package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"

	"skillproof/internal/modkit"
	"skillproof/internal/modkit/repokit"
	"skillproof/internal/ops"
	"skillproof/internal/platform/config"
	"skillproof/internal/platform/logger"
	"skillproof/internal/platform/store"

	verifydom "skillproof/internal/services/verify/domain"
	verifymod "skillproof/internal/services/verify/module"
)

func mustSetEnv(k, v string) {
	if v != "" {
		_ = os.Setenv(k, v)
	}
}

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	l := logger.Get()

	st, err := store.Open(context.Background(), store.Config{
		AppName: "skillproof-verify",
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
		profilesOnly = flag.Bool("profiles-only", false, "verify profile links only")
		badgesOnly   = flag.Bool("badges-only", false, "verify badge links only")
		limit        = flag.Int("limit", 0, "max targets per entity (0 = all)")
		workers      = flag.Int("workers", 0, "worker pool size (0 = configured default)")
		force        = flag.Bool("force", false, "re-verify rows that already carry a verdict")
		markMissing  = flag.Bool("mark-missing", false, "mark rows without a badge link invalid, then exit")
		noBrowser    = flag.Bool("no-browser", false, "skip the headless browser and use plain HTTP only")
		serveOps     = flag.Bool("ops", false, "serve /healthz and /summary while the batch runs")
	)
	flag.Parse()

	if *profilesOnly && *badgesOnly {
		log.Fatal("pick at most one of -profiles-only / -badges-only")
	}

	// Pass CLI flags into CORE_VERIFY_* so the module can read its own config
	if *workers > 0 {
		mustSetEnv("CORE_VERIFY_WORKERS", strconv.Itoa(*workers))
	}
	if *noBrowser {
		mustSetEnv("CORE_VERIFY_BROWSER", "0")
	}

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		Log: *l,
	}

	vm := verifymod.New(deps)
	runner := vm.Ports().(verifymod.Ports).Runner
	ctx := context.Background()

	if *markMissing {
		n, err := runner.MarkMissing(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("mark missing failed")
		}
		l.Info().Int64("rows", n).Msg("rows without a badge link marked invalid")
		return
	}

	if *serveOps {
		srv := ops.New(root, runner)
		go func() {
			if err := srv.Run(ctx); err != nil {
				l.Error().Err(err).Msg("ops server failed")
			}
		}()
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				l.Error().Err(err).Msg("ops shutdown failed")
			}
		}()
	}

	sum, err := runner.Run(ctx, verifydom.RunOpts{
		Profiles: !*badgesOnly,
		Badges:   !*profilesOnly,
		Limit:    *limit,
		Workers:  *workers,
		Force:    *force,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("verification failed")
	}
	if sum.TotalErrors > 0 {
		l.Warn().Int("errors", sum.TotalErrors).Strs("first", sum.Errors).Msg("run finished with errors")
	}
}
