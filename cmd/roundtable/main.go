package main

import (
	"context"
	"log"
	"net"
	"strconv"

	"github.com/joho/godotenv"

	"roundtable/internal/app"
	"roundtable/pkg/config"
	"roundtable/pkg/logger"
	"roundtable/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	eff, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// explicit flags win over env and config file
	if setFlags["addr"] {
		eff.Addr = addrVal
		if host, port, perr := net.SplitHostPort(addrVal); perr == nil {
			eff.Config.Server.Address = host
			if p, aerr := strconv.Atoi(port); aerr == nil {
				eff.Config.Server.Port = p
			}
		}
		eff.Source = "flags"
	}
	if setFlags["db"] {
		eff.DBPath = dbVal
		eff.Config.Server.DBPath = dbVal
		eff.Source = "flags"
	}

	logger.InitWithLevel(eff.Config.Logging.Level)

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("server exited", err, eff.DBPath, 0)
	}
	logger.Info("shutdown_complete")
}
