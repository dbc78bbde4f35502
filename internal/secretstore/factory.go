// Package secretstore builds the secret service from configuration. It picks
// exactly one backend at startup: vault when it is enabled and accepts the
// token, otherwise local encryption, otherwise none.
package secretstore

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/hishamos/secrets/internal/config"
	"github.com/hishamos/secrets/internal/kv"
	"github.com/hishamos/secrets/internal/kv/memory"
	kvredis "github.com/hishamos/secrets/internal/kv/redis"
	"github.com/hishamos/secrets/internal/resilience"
	"github.com/hishamos/secrets/internal/secret"
	"github.com/hishamos/secrets/internal/secret/local"
	"github.com/hishamos/secrets/internal/secret/ref"
	"github.com/hishamos/secrets/internal/secret/vault"
)

// Deps are the collaborators used while building the service.
type Deps struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Resolver *ref.Resolver

	// KV overrides the store built from config.KVConfig. It is only used,
	// and owned by the service, when the local backend is selected.
	KV kv.Store
}

// Result is the outcome of Open.
type Result struct {
	Service *secret.Service

	// KV is the store behind the local backend, nil for any other backend.
	KV kv.Store
}

// Open builds the secret service. It never fails: every initialization error
// is logged and leads to the next candidate backend.
func Open(ctx context.Context, cfg *config.Config, deps Deps) *Result {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = ref.NewDefaultResolver()
	}

	sc := cfg.Secrets
	info := secret.Info{VaultEnabled: sc.Vault.Enabled}
	result := &Result{}

	var backend secret.Backend

	if sc.Vault.Enabled {
		vb, err := openVault(ctx, sc.Vault, resolver, logger)
		if err != nil {
			logger.Error("vault initialization failed, falling back to local encryption",
				"address", sc.Vault.Address,
				"error", err,
			)
			info.VaultEnabled = false
		} else {
			logger.Info("secret backend initialized",
				"backend", secret.BackendVault,
				"address", sc.Vault.Address,
				"mount_point", vb.Mount(),
			)
			backend = vb
			if cb := sc.Vault.CircuitBreaker; cb.Enabled {
				backend = newGuardedBackend(vb, resilience.CircuitBreakerConfig{
					FailureThreshold: cb.FailureThreshold,
					SuccessThreshold: cb.SuccessThreshold,
					Timeout:          cb.Timeout,
				}, logger)
			}
		}
	}

	if backend == nil && sc.Local.Enabled {
		lb, store, ephemeral, err := openLocal(ctx, cfg, deps, resolver, logger)
		if err != nil {
			logger.Error("local encryption initialization failed", "error", err)
		} else {
			info.LocalEncryption = true
			info.EphemeralKey = ephemeral
			info.PathIndex = lb.PathIndex()
			result.KV = store
			backend = lb
			logger.Info("secret backend initialized",
				"backend", secret.BackendLocal,
				"kv", cfg.KV.Type,
				"path_index", info.PathIndex,
			)
		}
	}

	if backend == nil {
		logger.Error("no secret backend available; every secret operation will fail")
	} else if sc.Cache.Enabled {
		backend = secret.NewCachedBackend(backend, sc.Cache.TTL)
		info.Cached = true
	}

	result.Service = secret.NewService(backend,
		secret.WithLogger(logger),
		secret.WithTracer(deps.Tracer),
		secret.WithInfo(info),
	)
	return result
}

func openVault(ctx context.Context, vc config.VaultConfig, resolver *ref.Resolver, logger *slog.Logger) (*vault.Backend, error) {
	if vc.Address == "" {
		return nil, fmt.Errorf("vault address is not configured")
	}

	token, err := resolveOptional(ctx, resolver, vc.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve vault token: %w", err)
	}
	roleID, err := resolveOptional(ctx, resolver, vc.RoleID)
	if err != nil {
		return nil, fmt.Errorf("resolve vault role_id: %w", err)
	}
	secretID, err := resolveOptional(ctx, resolver, vc.SecretID)
	if err != nil {
		return nil, fmt.Errorf("resolve vault secret_id: %w", err)
	}

	if vc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, vc.Timeout)
		defer cancel()
	}

	return vault.New(ctx, vault.Config{
		Address:    vc.Address,
		Token:      token,
		MountPoint: vc.MountPoint,
		Namespace:  vc.Namespace,
		Timeout:    vc.Timeout,
		AuthMethod: vc.AuthMethod,
		RoleID:     roleID,
		SecretID:   secretID,
		CACert:     vc.CACert,
		ClientCert: vc.ClientCert,
		ClientKey:  vc.ClientKey,
	}, logger)
}

func openLocal(ctx context.Context, cfg *config.Config, deps Deps, resolver *ref.Resolver, logger *slog.Logger) (*local.Backend, kv.Store, bool, error) {
	lc := cfg.Secrets.Local
	store := deps.KV

	key, err := resolveOptional(ctx, resolver, lc.EncryptionKey)
	if err != nil {
		return nil, nil, false, fmt.Errorf("resolve encryption key: %w", err)
	}
	previous, err := resolver.ResolveAll(ctx, lc.PreviousKeys)
	if err != nil {
		return nil, nil, false, fmt.Errorf("resolve previous keys: %w", err)
	}

	ephemeral := false
	if key == "" {
		key, err = local.GenerateKey()
		if err != nil {
			return nil, nil, false, err
		}
		ephemeral = true
		logger.Warn("no encryption key configured; generated an ephemeral key. " +
			"Secrets stored now cannot be read after a restart. Set secrets.local.encryption_key for durability.")
	}

	codec, err := local.NewCodec(key, previous...)
	if err != nil {
		return nil, nil, false, err
	}

	if store == nil {
		store, err = OpenKV(cfg.KV)
		if err != nil {
			return nil, nil, false, err
		}
	}

	lb := local.New(store, codec,
		local.WithPathIndex(lc.PathIndex),
		local.WithTracer(deps.Tracer),
	)
	return lb, store, ephemeral, nil
}

// OpenKV builds the kv.Store described by cfg.
func OpenKV(cfg config.KVConfig) (kv.Store, error) {
	switch kv.Type(cfg.Type) {
	case kv.TypeMemory, "":
		return memory.New(), nil
	case kv.TypeRedis:
		store, err := kvredis.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis kv store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown kv type: %q", cfg.Type)
	}
}

func resolveOptional(ctx context.Context, resolver *ref.Resolver, value string) (string, error) {
	if value == "" {
		return "", nil
	}
	return resolver.Resolve(ctx, value)
}
