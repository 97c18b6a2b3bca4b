package main

import (
	"context"

	"github.com/cppla/bemechallenge/config"
	"github.com/cppla/bemechallenge/jobs"
	"github.com/cppla/bemechallenge/ledger"
	"github.com/cppla/bemechallenge/models"
	"github.com/cppla/bemechallenge/routes"
	"github.com/cppla/bemechallenge/store"
	"github.com/cppla/bemechallenge/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(models.All()...)

	cal := ledger.NewCalendar(cfg.Location())
	l := ledger.New(store.NewGormStore(db), cal, utils.Logger.Named("ledger"))
	r := routes.Setup(db, l)

	expiry := jobs.NewChallengeExpiry(db, cfg.ChallengeExpiryCron, utils.Logger.Named("jobs"))
	if err := expiry.Start(); err != nil {
		utils.Sugar.Fatalf("failed to start challenge expiry job: %v", err)
	}

	utils.Sugar.Infof("Starting server on port %s (graceful), timezone %s", cfg.AppPort, cal.Location)
	if err := utils.GraceServer(":"+cfg.AppPort, r, func(ctx context.Context) {
		expiry.Stop(ctx)
	}); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
