package keagw

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lovi-cloud/keagw/config"
	"github.com/lovi-cloud/keagw/datastore/sqlite"
	"github.com/lovi-cloud/keagw/httpd/gohttpd"
	"github.com/lovi-cloud/keagw/reslock"
)

var (
	version  = "dev"
	revision = "unknown"
)

// Run the keagw
func Run(ctx context.Context) error {
	var (
		configPath string
		listen     string
	)
	flags := flag.NewFlagSet(fmt.Sprintf("keagw (v%s rev:%s)", version, revision), flag.ContinueOnError)
	flags.StringVar(&configPath, "config", "config.yaml", "configuration file path")
	flags.StringVar(&listen, "listen", "", "listen address (overrides configuration)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	store := config.NewStore(configPath)
	cfg, err := store.Snapshot()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ds, err := sqlite.New(ctx, cfg.App.Database)
	if err != nil {
		return err
	}
	defer ds.Close()

	token := cfg.App.APIToken
	if token == "" && cfg.App.SecretsPath != "" {
		token, err = ensureAPIToken(ctx, cfg.App.SecretsPath)
		if err != nil {
			return err
		}
		logger.Info("api token loaded", zap.String("path", cfg.App.SecretsPath))
	}

	httpd, err := gohttpd.New(store, ds, token, logger)
	if err != nil {
		return err
	}

	addr := cfg.App.Listen
	if listen != "" {
		addr = listen
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("starting httpd",
			zap.String("addr", addr),
			zap.String("control_agent", cfg.Kea.ControlAgentURL))
		return httpd.Serve(ctx, addr)
	})

	return eg.Wait()
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zapCfg.Level = parsed
	}
	return zapCfg.Build()
}

// ensureAPIToken reads the bearer token from the secrets file, generating
// it first when absent. The generation is guarded by its own file lock so
// concurrent workers starting at once agree on a single token. This lock
// is independent of the reservation lock; it is only taken at startup.
func ensureAPIToken(ctx context.Context, path string) (string, error) {
	initLock := reslock.New(path+".lock", 5*time.Second)
	handle, err := initLock.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire secrets init lock: %w", err)
	}
	defer handle.Release()

	buf, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(buf))) > 0 {
		return strings.TrimSpace(string(buf)), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}

	token := uuid.NewV4().String()
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write secrets file %s: %w", path, err)
	}
	return token, nil
}
