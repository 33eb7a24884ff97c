// cmd/preflight checks the runtime configuration and its backing services
// before a deploy. It exits non-zero when anything required is broken.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/servicepoller/internal/config"
	"github.com/hamed0406/servicepoller/internal/notify"
	bdg "github.com/hamed0406/servicepoller/internal/repo/badger"
	pg "github.com/hamed0406/servicepoller/internal/repo/postgres"
)

type reporter struct {
	out, errOut io.Writer
	failed      bool
}

func (r *reporter) fail(msg string) {
	fmt.Fprintln(r.errOut, "✖", msg)
	r.failed = true
}
func (r *reporter) warn(msg string) { fmt.Fprintln(r.errOut, "⚠", msg) }
func (r *reporter) ok(msg string)   { fmt.Fprintln(r.out, "✔", msg) }

func main() {
	path := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	r := &reporter{out: os.Stdout, errOut: os.Stderr}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if !run(ctx, *path, r) {
		os.Exit(1)
	}
}

// run performs every check and reports whether all required ones passed.
func run(ctx context.Context, path string, r *reporter) bool {
	cfg, err := config.Load(path)
	if err != nil {
		r.fail(err.Error())
		return false
	}
	r.ok("configuration valid")
	r.ok("API_ADDR=" + cfg.Addr)

	if err := checkWritable(cfg.LogDir); err != nil {
		r.fail("LOG_DIR not writable: " + err.Error())
	} else {
		r.ok("LOG_DIR=" + cfg.LogDir)
	}

	switch cfg.StoreKind() {
	case config.StorePostgres:
		s, err := pg.New(ctx, cfg.DatabaseURL, zap.NewNop())
		if err != nil {
			r.fail("DATABASE_URL unreachable: " + err.Error())
		} else {
			_ = s.Close()
			r.ok("postgres reachable")
		}
	case config.StoreBadger:
		s, err := bdg.Open(cfg.BadgerPath)
		if err != nil {
			r.fail("BADGER_PATH cannot be opened: " + err.Error())
		} else {
			_ = s.Close()
			r.ok("badger store at " + cfg.BadgerPath)
		}
	default:
		r.warn("no DATABASE_URL or BADGER_PATH; endpoints are kept in memory and lost on restart")
	}

	if cfg.PollInterval == 0 {
		r.warn("POLL_INTERVAL=0; background polling is disabled")
	} else {
		r.ok(fmt.Sprintf("polling every %s, probe timeout %s", cfg.PollInterval, cfg.ProbeTimeout))
	}

	if cfg.NATSURL != "" {
		n, err := notify.NewNATS(cfg.NATSURL, cfg.NATSSubject, zap.NewNop())
		if err != nil {
			r.warn("NATS_URL unreachable, status events will not be published: " + err.Error())
		} else {
			_ = n.Close()
			r.ok("nats reachable, subject " + cfg.NATSSubject)
		}
	}

	if len(cfg.AdminAPIKeys) == 0 {
		r.warn("ADMIN_API_KEYS empty; anyone can add or delete services")
	} else {
		r.ok(fmt.Sprintf("%d admin key(s) configured", len(cfg.AdminAPIKeys)))
	}
	if len(cfg.AllowedOrigins) == 0 {
		r.warn("ALLOWED_ORIGINS empty; CORS allows every origin")
	}

	if r.failed {
		return false
	}
	r.ok("preflight passed")
	return true
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}
