package main

import (
	"encoding/json"
	"flag"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joripage/l2book/config"
	"github.com/joripage/l2book/pkg/infra"
	"go.uber.org/zap"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	configBytes, err := json.MarshalIndent(cfg.Journal, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	if cfg.Journal.DB == nil {
		panic("journal.db is not configured")
	}

	mgTool := infra.GetMigrateTool()
	if err := mgTool.Migrate(infra.DefaultMigrationSource, cfg.Journal.DB.MigrationConnURL); err != nil {
		panic(err)
	}
}
