package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"pensionhub/internal/aggregator"
	"pensionhub/internal/config"
	"pensionhub/internal/geo"
	"pensionhub/internal/importer"
	"pensionhub/internal/logging"
	"pensionhub/internal/normalizer"
	"pensionhub/internal/parser"
	"pensionhub/internal/store"
)

// app 命令共享的组件；存储在入口打开一次，退出时关闭
type app struct {
	cfg         *config.AppConfig
	info        config.LoadConfigInfo
	logs        *logging.Manager
	logger      *logrus.Logger
	store       *store.Store
	detector    *parser.Detector
	mapper      *parser.Mapper
	coordinator *importer.Coordinator
	aggregator  *aggregator.Aggregator
}

func newApp(configPath string) (*app, error) {
	cfg, info, err := config.LoadConfigWithInfo(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logs, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger := logs.Logger()
	logger.WithFields(logrus.Fields{
		"config": info.Path,
		"found":  info.FileFound,
	}).Debug("config loaded")

	a := &app{cfg: cfg, info: info, logs: logs, logger: logger}
	if err := a.init(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	if a.cfg.Database.Driver == "sqlite3" && a.cfg.Database.DSN == "" {
		if _, err := config.EnsureDataDir(a.cfg); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	st, err := store.Open(store.Options{
		Driver:       a.cfg.Database.Driver,
		DSN:          config.DatabaseDSN(a.cfg),
		MaxOpenConns: a.cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	a.store = st

	resolver, err := geo.LoadResolver(a.cfg.Ingest.GeoReferenceFile)
	if err != nil {
		return err
	}
	profiles, err := parser.LoadProfiles(a.cfg.Ingest.ProfilesFile)
	if err != nil {
		return err
	}

	a.mapper = parser.NewMapper(a.cfg.Ingest.MinMappingScore)
	a.detector = parser.NewDetector(profiles, a.cfg.Ingest.ProbeRows, a.mapper)
	a.coordinator = importer.NewCoordinator(
		st, a.detector, a.mapper,
		normalizer.New(resolver),
		a.logger,
		importer.Config{MaxConsecutiveErrors: a.cfg.Ingest.MaxConsecutiveErrors},
	)
	a.aggregator = aggregator.New(st, a.logger)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close store")
		}
	}
	_ = a.logs.Close()
}
