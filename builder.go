package authd

import (
	"errors"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/finvault/authd/cache"
	tokens "github.com/finvault/authd/jwt"
	"github.com/finvault/authd/password"
	"github.com/finvault/authd/store"
)

// Logger is the minimal structured sink the engine logs through.
// *logrus.Logger and *logrus.Entry satisfy it; the default falls back to the
// standard library.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type stdLogger struct{}

func (stdLogger) Infof(format string, args ...any)  { log.Printf("INFO "+format, args...) }
func (stdLogger) Warnf(format string, args ...any)  { log.Printf("WARN "+format, args...) }
func (stdLogger) Errorf(format string, args ...any) { log.Printf("ERROR "+format, args...) }

// Builder assembles an [Engine]. Construction is allocation-only; all
// validation and key parsing happens in [Builder.Build].
type Builder struct {
	config       Config
	configSet    bool
	entityStore  store.Store
	cacheBackend cache.Backend
	logger       Logger
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// WithConfig sets the engine configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.configSet = true
	return b
}

// WithStore sets the durable entity store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.entityStore = s
	return b
}

// WithCacheBackend sets the entity cache backend. Optional: without one (and
// with caching enabled) an in-process backend is built at Build time.
func (b *Builder) WithCacheBackend(backend cache.Backend) *Builder {
	b.cacheBackend = backend
	return b
}

// WithRedis wires a Redis-backed entity cache, for deployments where several
// replicas should share one cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.cacheBackend = cache.NewRedisBackend(client, "aec")
	return b
}

// WithLogger sets the log sink. Optional; defaults to the standard library.
func (b *Builder) WithLogger(l Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the wiring, parses key material, and returns a ready
// Engine.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.config
	if !b.configSet {
		cfg = defaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if b.entityStore == nil {
		return nil, errors.New("entity store is required")
	}

	hasher, err := password.NewHasher(password.Config{
		Iterations: cfg.Password.Iterations,
		SaltSize:   cfg.Password.SaltSize,
		KeySize:    cfg.Password.KeySize,
	})
	if err != nil {
		return nil, err
	}

	tokenConfig, err := buildTokenConfig(cfg.JWT)
	if err != nil {
		return nil, err
	}
	manager, err := tokens.NewManager(tokenConfig)
	if err != nil {
		return nil, err
	}

	backend := b.cacheBackend
	if backend == nil && cfg.Cache.Enabled {
		backend = cache.NewMemoryBackend(cache.DefaultMemorySize, cfg.Cache.TTL)
	}
	entityCache := cache.New(backend, cfg.Cache.Enabled, cfg.Cache.TTL)

	logger := b.logger
	if logger == nil {
		logger = stdLogger{}
	}

	e := &Engine{
		config: cfg,
		store:  b.entityStore,
		cache:  entityCache,
		hasher: hasher,
		tokens: manager,
		logger: logger,
	}
	e.flows = e.buildFlows()
	e.ready = true
	return e, nil
}

// buildTokenConfig resolves the per-kind algorithm table once, at build time.
// Principal kinds are an explicit enum; nothing here inspects runtime types.
func buildTokenConfig(cfg JWTConfig) (tokens.Config, error) {
	resolve := func(override string) (tokens.Algorithm, error) {
		name := override
		if name == "" {
			name = cfg.DefaultAlgorithm
		}
		if name == "" {
			name = string(tokens.AlgRS256)
		}
		switch strings.ToLower(name) {
		case string(tokens.AlgRS256):
			return tokens.AlgRS256, nil
		case string(tokens.AlgHS256):
			return tokens.AlgHS256, nil
		default:
			return "", &FriendlyError{
				Code:    400,
				Message: "unsupported signing algorithm: " + name,
				Err:     ErrUnsupportedAlgorithm,
			}
		}
	}

	keys := make(map[tokens.Kind]tokens.KeyConfig, 2)
	for kind, override := range map[tokens.Kind]string{
		tokens.KindUser:   cfg.UserAlgorithm,
		tokens.KindClient: cfg.ClientAlgorithm,
	} {
		alg, err := resolve(override)
		if err != nil {
			return tokens.Config{}, err
		}
		keys[kind] = tokens.KeyConfig{
			Algorithm:     alg,
			RSAPrivateKey: cfg.RSAPrivateKey,
			RSAPublicKey:  cfg.RSAPublicKey,
			Secret:        cfg.Secret,
		}
	}

	return tokens.Config{
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		AccessTTL: cfg.AccessTTL,
		Keys:      keys,
	}, nil
}
