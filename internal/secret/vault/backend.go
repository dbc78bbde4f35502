// Package vault implements the secret backend on HashiCorp Vault's KV v2
// engine: payloads live at {mount}/data/{path}, metadata and listing at
// {mount}/metadata/{path}.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hishamos/secrets/internal/observability"
	"github.com/hishamos/secrets/internal/secret"
)

// Auth methods.
const (
	AuthToken   = "token"
	AuthAppRole = "approle"
	AuthCert    = "cert"
)

// DefaultMountPoint is the KV v2 mount used when none is configured.
const DefaultMountPoint = "secret"

// Config holds configuration for the Vault backend.
type Config struct {
	Address    string
	Token      string
	MountPoint string
	Namespace  string
	Timeout    time.Duration

	AuthMethod string // token (default), approle, cert
	RoleID     string
	SecretID   string

	CACert     string
	ClientCert string
	ClientKey  string
}

// Backend implements secret.Backend for Vault KV v2.
type Backend struct {
	client *vault.Client
	mount  string
	logger *slog.Logger
	tracer trace.Tracer

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Vault client, authenticates and verifies the token with a
// lookup-self call. Any failure is returned; the caller decides what to fall
// back to. The client never retries.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if cfg.Address == "" {
		return nil, errors.New("vault address is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.Address
	vConfig.MaxRetries = 0
	if cfg.Timeout > 0 {
		vConfig.Timeout = cfg.Timeout
	}

	if cfg.ClientCert != "" || cfg.ClientKey != "" || cfg.CACert != "" {
		tlsConfig := &vault.TLSConfig{
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
			CACert:     cfg.CACert,
		}
		if err := vConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("configure tls: %w", err)
		}
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	auth, err := login(ctx, client, cfg)
	if err != nil {
		return nil, err
	}

	mount := strings.Trim(cfg.MountPoint, "/")
	if mount == "" {
		mount = DefaultMountPoint
	}

	b := &Backend{
		client: client,
		mount:  mount,
		logger: logger,
		tracer: otel.Tracer(observability.TracerName),
		stopCh: make(chan struct{}),
	}

	if auth.Renewable {
		b.wg.Add(1)
		go b.startTokenRenewer(auth)
	}

	return b, nil
}

func login(ctx context.Context, client *vault.Client, cfg Config) (*vault.SecretAuth, error) {
	var (
		resp *vault.Secret
		err  error
	)

	switch cfg.AuthMethod {
	case "", AuthToken:
		if cfg.Token == "" {
			return nil, errors.New("vault token is empty")
		}
		client.SetToken(cfg.Token)
		return lookupSelf(ctx, client, cfg.Token)
	case AuthCert:
		// mTLS login
		resp, err = client.Logical().WriteWithContext(ctx, "auth/cert/login", nil)
	case AuthAppRole:
		resp, err = client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
	default:
		return nil, fmt.Errorf("unknown vault auth method: %s", cfg.AuthMethod)
	}

	if err != nil {
		return nil, fmt.Errorf("vault login (%s): %w", cfg.AuthMethod, err)
	}
	if resp == nil || resp.Auth == nil {
		return nil, errors.New("vault login returned no auth info")
	}

	client.SetToken(resp.Auth.ClientToken)
	return resp.Auth, nil
}

// lookupSelf verifies that the token is accepted and reports whether it can
// be renewed.
func lookupSelf(ctx context.Context, client *vault.Client, token string) (*vault.SecretAuth, error) {
	resp, err := client.Auth().Token().LookupSelfWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault authentication failed: %w", err)
	}
	if resp == nil {
		return nil, errors.New("vault token lookup returned no data")
	}

	auth := &vault.SecretAuth{ClientToken: token}
	if renewable, err := resp.TokenIsRenewable(); err == nil {
		auth.Renewable = renewable
	}
	if ttl, err := resp.TokenTTL(); err == nil {
		auth.LeaseDuration = int(ttl.Seconds())
	}
	return auth, nil
}

// Name returns secret.BackendVault.
func (b *Backend) Name() string {
	return secret.BackendVault
}

// Mount returns the KV v2 mount point.
func (b *Backend) Mount() string {
	return b.mount
}

func (b *Backend) dataPath(path string) string {
	return b.mount + "/data/" + path
}

func (b *Backend) metadataPath(path string) string {
	return b.mount + "/metadata/" + path
}

// Store writes a new version of the secret. Non-empty metadata is written as
// custom_metadata.
func (b *Backend) Store(ctx context.Context, path string, payload secret.Payload, metadata secret.Metadata) error {
	ctx, span := observability.StartBackendSpan(ctx, b.tracer, "vault", "write")
	defer span.End()

	_, err := b.client.Logical().WriteWithContext(ctx, b.dataPath(path), map[string]interface{}{
		"data":    map[string]interface{}(payload),
		"options": map[string]interface{}{},
	})
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("write vault secret %q: %w", path, err)
	}

	if len(metadata) > 0 {
		custom := make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			custom[k] = v
		}
		_, err = b.client.Logical().WriteWithContext(ctx, b.metadataPath(path), map[string]interface{}{
			"custom_metadata": custom,
		})
		if err != nil {
			observability.RecordError(span, err)
			return fmt.Errorf("write vault metadata %q: %w", path, err)
		}
	}
	return nil
}

// Get reads the latest version of the secret.
func (b *Backend) Get(ctx context.Context, path string) (secret.Payload, error) {
	ctx, span := observability.StartBackendSpan(ctx, b.tracer, "vault", "read")
	defer span.End()

	resp, err := b.client.Logical().ReadWithContext(ctx, b.dataPath(path))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("read vault secret %q: %w", path, err)
	}
	if resp == nil || resp.Data == nil {
		return nil, secret.ErrNotFound
	}

	// KV v2 wraps the payload in a "data" field; a deleted version has it nil.
	data, ok := resp.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, secret.ErrNotFound
	}
	return secret.Payload(data), nil
}

// Delete removes the metadata and every version of the secret.
func (b *Backend) Delete(ctx context.Context, path string) error {
	ctx, span := observability.StartBackendSpan(ctx, b.tracer, "vault", "delete")
	defer span.End()

	_, err := b.client.Logical().DeleteWithContext(ctx, b.metadataPath(path))
	if err != nil && !isNotFound(err) {
		observability.RecordError(span, err)
		return fmt.Errorf("delete vault secret %q: %w", path, err)
	}
	return nil
}

// List returns the keys directly under prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := observability.StartBackendSpan(ctx, b.tracer, "vault", "list")
	defer span.End()

	resp, err := b.client.Logical().ListWithContext(ctx, b.metadataPath(prefix))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("list vault secrets %q: %w", prefix, err)
	}
	if resp == nil || resp.Data == nil {
		return []string{}, nil
	}

	raw, _ := resp.Data["keys"].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	return keys, nil
}

// Close stops the token renewer and releases resources.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		b.wg.Wait()
	})
	return nil
}

func (b *Backend) startTokenRenewer(auth *vault.SecretAuth) {
	defer b.wg.Done()

	watcher, err := b.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		b.logger.Error("failed to create vault lifetime watcher", "error", err)
		return
	}

	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case err := <-watcher.DoneCh():
			if err != nil {
				b.logger.Error("vault token renewal stopped", "error", err)
			}
			return
		case <-watcher.RenewCh():
			b.logger.Debug("vault token renewed")
		}
	}
}

func isNotFound(err error) bool {
	var respErr *vault.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

var _ secret.Backend = (*Backend)(nil)
