package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"go_niceurl/internal/cache"
	"go_niceurl/internal/config"
	"go_niceurl/internal/converter"
	"go_niceurl/internal/db"
	"go_niceurl/internal/metrics"
	"go_niceurl/internal/rulestore"
	"go_niceurl/internal/urlrouter"
	"go_niceurl/internal/validator"
)

// app bundles the wired components shared by every subcommand
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	db        *gorm.DB
	redis     *redis.Client
	registry  *prometheus.Registry
	router    *urlrouter.Router
	rules     *rulestore.Service
	validator *validator.RuleValidator
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromINI(configPath)
	}
	return config.Load()
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Log)
	logger.Info("Configuration loaded")

	gdb, err := db.OpenMySQL(cfg.MySQL.DSN, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("MySQL connected")

	a := &app{cfg: cfg, logger: logger, db: gdb, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	c, err := a.newCache()
	if err != nil {
		a.close()
		return nil, err
	}

	hooks := converter.NewHooks()
	converter.RegisterCoreHooks(hooks)
	converter.RegisterDBHooks(hooks, gdb)
	strategies := converter.NewDefaultRegistry(converter.Config{
		Timeout:  time.Duration(cfg.Router.StrategyTimeoutMs) * time.Millisecond,
		Logger:   logrus.NewEntry(logger),
		Observer: m,
	}, gdb, hooks)

	store := rulestore.NewStore(gdb)
	a.router = urlrouter.New(urlrouter.Options{
		Rules:              store,
		Strategies:         strategies,
		Cache:              c,
		BaseURL:            cfg.Site.BaseURL,
		CacheEnabled:       cfg.Router.CacheEnabled,
		StrictPlaceholders: cfg.Router.StrictPlaceholders,
		Logger:             logrus.NewEntry(logger),
		Metrics:            m,
	})
	a.rules = rulestore.NewService(store, a.router, logrus.NewEntry(logger))
	a.validator = validator.NewRuleValidator(cfg.Site.BaseURL, strategies, cfg.Router.StrictPlaceholders)

	return a, nil
}

func (a *app) newCache() (cache.Cache, error) {
	if !a.cfg.Router.CacheEnabled {
		return cache.NopCache{}, nil
	}

	switch a.cfg.Router.CacheBackend {
	case config.CacheBackendRedis:
		client, err := cache.InitRedis(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.logger.Info("Redis connected")
		return cache.NewRedisCache(cache.RedisConfig{
			Client: client,
			Prefix: a.cfg.Redis.Prefix,
			Logger: logrus.NewEntry(a.logger),
		}), nil
	default:
		return cache.NewMemoryCache(a.cfg.Router.CacheSize)
	}
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if err := db.Close(a.db); err != nil {
		a.logger.WithError(err).Warn("failed to close MySQL")
	}
}
