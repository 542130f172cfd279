// Package app wires the shelf command line client: configuration, logging,
// session storage, the backend client and the session manager.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/juanclpzq/digital-library/internal/shelf/session"
	"github.com/juanclpzq/digital-library/pkg/cryptox"
	"github.com/juanclpzq/digital-library/pkg/kvstore"
	"github.com/juanclpzq/digital-library/pkg/kvstore/drivers/memory"
	"github.com/juanclpzq/digital-library/pkg/kvstore/drivers/redis"
	"github.com/juanclpzq/digital-library/pkg/kvstore/drivers/sqlite"
	"github.com/juanclpzq/digital-library/pkg/shelfsdk"
	"github.com/juanclpzq/digital-library/pkg/slogx"
)

// BuildVersion is overridden at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application wires the store, the API client and the session for one CLI run.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store   *kvstore.Store
	client  *shelfsdk.Client
	session *session.Manager

	in     *bufio.Reader
	stdin  io.Reader
	out    io.Writer
	errOut io.Writer

	driver       kvstore.Driver
	httpClient   *http.Client
	readPassword func() ([]byte, error)
	sessionOpts  []session.Option
}

// Option configures an Application.
type Option func(*Application)

// WithIO replaces the process's standard streams.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *Application) {
		a.stdin, a.out, a.errOut = in, out, errOut
	}
}

// WithLogger replaces the logger built from Config.
func WithLogger(l *slog.Logger) Option {
	return func(a *Application) { a.logger = l }
}

// WithDriver bypasses the configured store driver.
func WithDriver(d kvstore.Driver) Option {
	return func(a *Application) { a.driver = d }
}

// WithHTTPClient replaces the HTTP client used by the API client.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *Application) { a.httpClient = hc }
}

// WithPasswordReader replaces the hidden terminal prompt.
func WithPasswordReader(fn func() ([]byte, error)) Option {
	return func(a *Application) { a.readPassword = fn }
}

// WithSessionOptions appends options for the session manager, after the
// ones derived from Config.
func WithSessionOptions(opts ...session.Option) Option {
	return func(a *Application) { a.sessionOpts = append(a.sessionOpts, opts...) }
}

// New builds the application. Storage that cannot be opened is not fatal:
// the session then lives in memory for this run only.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	a := &Application{
		cfg:    cfg,
		stdin:  os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.in = bufio.NewReader(a.stdin)

	if a.logger == nil {
		a.logger = slogx.New(slogx.Config{
			Service: "shelf",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  a.errOut,
		})
	}

	driver := a.driver
	if driver == nil {
		d, err := a.openDriver(ctx)
		if err != nil {
			a.logger.Warn("session storage unavailable", "driver", cfg.StoreDriver, "err", err)
		} else {
			driver = d
		}
	}
	a.store = kvstore.New(driver, kvstore.WithLogger(a.logger))

	clientOpts := []shelfsdk.Option{shelfsdk.WithLogger(a.logger)}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, shelfsdk.WithHTTPClient(a.httpClient))
	} else if cfg.HTTPTimeout > 0 {
		clientOpts = append(clientOpts, shelfsdk.WithTimeout(cfg.HTTPTimeout))
	}
	a.client = shelfsdk.NewClient(cfg.APIURL, clientOpts...)

	sessionOpts := []session.Option{session.WithLogger(a.logger)}
	if cfg.RefreshBuffer > 0 {
		sessionOpts = append(sessionOpts, session.WithRefreshBuffer(cfg.RefreshBuffer))
	}
	if cfg.MinRefreshInterval > 0 {
		sessionOpts = append(sessionOpts, session.WithMinRefreshInterval(cfg.MinRefreshInterval))
	}
	if cfg.ProfileFreshness > 0 {
		sessionOpts = append(sessionOpts, session.WithProfileFreshness(cfg.ProfileFreshness))
	}
	if cfg.LogoutTimeout > 0 {
		sessionOpts = append(sessionOpts, session.WithLogoutTimeout(cfg.LogoutTimeout))
	}
	a.session = session.New(a.client, a.store, append(sessionOpts, a.sessionOpts...)...)

	return a, nil
}

func (a *Application) openDriver(ctx context.Context) (kvstore.Driver, error) {
	switch a.cfg.StoreDriver {
	case DriverMemory:
		return memory.NewProfile().Open(), nil

	case DriverRedis:
		client, err := redis.Connect(ctx, redis.Config{ConnectionURL: a.cfg.RedisURL})
		if err != nil {
			return nil, err
		}
		return redis.New(client, a.cfg.RedisNamespace, redis.WithLogger(a.logger)), nil

	default:
		if dir := filepath.Dir(a.cfg.StorePath); dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
		opts := []sqlite.Option{sqlite.WithLogger(a.logger)}
		if a.cfg.StoreKeyFile != "" {
			sealer, err := cryptox.NewSealerFromFile(a.cfg.StoreKeyFile)
			if err != nil {
				return nil, err
			}
			opts = append(opts, sqlite.WithSealer(sealer))
		}
		return sqlite.Open(a.cfg.StorePath, opts...)
	}
}

// Session exposes the manager, mainly for tests that drive two clients.
func (a *Application) Session() *session.Manager { return a.session }

// Close stops the session and releases the store.
func (a *Application) Close() error {
	a.session.Close()
	return a.store.Close()
}
