// Command authd runs the token service over HTTP: grant, refresh, revoke,
// and verification endpoints plus optional OpenID discovery and a Prometheus
// metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/finvault/authd"
	"github.com/finvault/authd/httpapi"
	"github.com/finvault/authd/metrics/export/prometheus"
	"github.com/finvault/authd/store"
)

// duration lets config files use Go duration strings like "15m".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func (d duration) std() time.Duration { return time.Duration(d) }

type fileConfig struct {
	Listen string `yaml:"listen"`
	Dev    bool   `yaml:"dev"`

	Store struct {
		Driver string `yaml:"driver"` // postgres or memory
		URL    string `yaml:"url"`
	} `yaml:"store"`

	Cache struct {
		Enabled   bool          `yaml:"enabled"`
		TTL       duration `yaml:"ttl"`
		RedisAddr string        `yaml:"redis_addr"`
	} `yaml:"cache"`

	JWT struct {
		Issuer            string        `yaml:"issuer"`
		Audience          string        `yaml:"audience"`
		AccessTTL         duration `yaml:"access_ttl"`
		DefaultAlgorithm  string        `yaml:"default_algorithm"`
		UserAlgorithm     string        `yaml:"user_algorithm"`
		ClientAlgorithm   string        `yaml:"client_algorithm"`
		RSAPrivateKeyFile string        `yaml:"rsa_private_key_file"`
		RSAPublicKeyFile  string        `yaml:"rsa_public_key_file"`
	} `yaml:"jwt"`

	Password struct {
		Iterations int `yaml:"iterations"`
		SaltSize   int `yaml:"salt_size"`
		KeySize    int `yaml:"key_size"`
	} `yaml:"password"`

	Refresh struct {
		TTL         duration `yaml:"ttl"`
		TokenLength int           `yaml:"token_length"`
	} `yaml:"refresh"`

	OpenID struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"openid"`
}

func defaultFileConfig() fileConfig {
	var cfg fileConfig
	cfg.Listen = ":8080"
	cfg.Store.Driver = "postgres"
	cfg.Store.URL = getEnv("DATABASE_URL", "postgres://localhost/authd?sslmode=disable")
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = duration(15 * time.Minute)
	cfg.Cache.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.JWT.Issuer = "authd"
	cfg.JWT.Audience = "authd"
	cfg.JWT.AccessTTL = duration(15 * time.Minute)
	cfg.JWT.DefaultAlgorithm = "rs256"
	cfg.Password.Iterations = 10000
	cfg.Password.SaltSize = 16
	cfg.Password.KeySize = 32
	cfg.Refresh.TTL = duration(24 * time.Hour)
	cfg.Refresh.TokenLength = 32
	cfg.OpenID.Enabled = true
	return cfg
}

func loadFileConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", getEnv("AUTHD_CONFIG", ""), "Path to YAML configuration file")
	listen := flag.String("listen", "", "Listen address (overrides config file)")
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := loadFileConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	engineConfig, err := buildEngineConfig(cfg)
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	entityStore, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	builder := authd.New().
		WithConfig(engineConfig).
		WithStore(entityStore).
		WithLogger(logger)

	if cfg.Cache.Enabled && cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		builder = builder.WithRedis(client)
		logger.Infof("Entity cache backed by Redis at %s", cfg.Cache.RedisAddr)
	}

	engine, err := builder.Build()
	if err != nil {
		logger.Fatalf("Failed to build engine: %v", err)
	}

	router := mux.NewRouter()
	httpapi.NewHandlers(engine, logger, cfg.Dev).RegisterRoutes(router)
	router.Handle("/metrics", prometheus.NewExporter(engine).Handler()).Methods("GET")

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("Starting authd on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown failed: %v", err)
	}
}

func buildEngineConfig(cfg fileConfig) (authd.Config, error) {
	engineConfig := authd.Config{
		JWT: authd.JWTConfig{
			Issuer:           cfg.JWT.Issuer,
			Audience:         cfg.JWT.Audience,
			AccessTTL:        cfg.JWT.AccessTTL.std(),
			DefaultAlgorithm: cfg.JWT.DefaultAlgorithm,
			UserAlgorithm:    cfg.JWT.UserAlgorithm,
			ClientAlgorithm:  cfg.JWT.ClientAlgorithm,
		},
		Password: authd.PasswordConfig{
			Iterations: cfg.Password.Iterations,
			SaltSize:   cfg.Password.SaltSize,
			KeySize:    cfg.Password.KeySize,
		},
		Refresh: authd.RefreshConfig{
			TTL:         cfg.Refresh.TTL.std(),
			TokenLength: cfg.Refresh.TokenLength,
		},
		Cache: authd.CacheConfig{
			Enabled: cfg.Cache.Enabled,
			TTL:     cfg.Cache.TTL.std(),
		},
		OpenID: authd.OpenIDConfig{
			Enabled: cfg.OpenID.Enabled,
		},
	}

	if cfg.JWT.RSAPrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.JWT.RSAPrivateKeyFile)
		if err != nil {
			return authd.Config{}, err
		}
		engineConfig.JWT.RSAPrivateKey = key
	}
	if cfg.JWT.RSAPublicKeyFile != "" {
		key, err := os.ReadFile(cfg.JWT.RSAPublicKeyFile)
		if err != nil {
			return authd.Config{}, err
		}
		engineConfig.JWT.RSAPublicKey = key
	}
	// The symmetric secret only comes from the environment, never from a
	// config file on disk.
	if secret := os.Getenv("AUTHD_HS256_SECRET"); secret != "" {
		engineConfig.JWT.Secret = []byte(secret)
	}

	return engineConfig, nil
}

func openStore(cfg fileConfig, logger *logrus.Logger) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Warn("Using in-memory store; all state is lost on restart")
		return store.NewMemory(), func() {}, nil
	case "postgres":
		pg, err := store.OpenPostgres(store.ConnectionConfig{
			URL:      cfg.Store.URL,
			MaxConns: 10,
			Timeout:  5 * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, func() { pg.Close() }, nil
	default:
		return nil, nil, errors.New("unknown store driver: " + cfg.Store.Driver)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
