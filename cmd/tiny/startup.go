package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tryteex/tiny-web-sub001/action"
	"github.com/tryteex/tiny-web-sub001/cache"
	"github.com/tryteex/tiny-web-sub001/config"
	"github.com/tryteex/tiny-web-sub001/lang"
	"github.com/tryteex/tiny-web-sub001/pool"
	"github.com/tryteex/tiny-web-sub001/response"
	"github.com/tryteex/tiny-web-sub001/route"
	"github.com/tryteex/tiny-web-sub001/server"
)

// sessionCookieName is the gateway-side cookie/header name the request
// listener uses to recognize an existing session key (spec §4.H).
const sessionCookieName = "tiny_sid"

const controlDialTimeout = 2 * time.Second

// cmdGo runs the server in the foreground: load config, open the
// database pool and the shared immutable bundles, bind both listeners
// control-before-request, then serve until a stop sentinel or signal
// arrives (spec §6 "go (run in foreground)"; original_source/src/sys
// /init.rs's load-config-then-open-resources-then-bind-control-before
// -request ordering).
func cmdGo(rf rootFlags) error {
	cfg, log, err := loadConfigAndLogger(rf)
	if err != nil {
		return err
	}
	defer log.Sync()

	protocol, err := protocolFromName(rf.protocol)
	if err != nil {
		return fail(ExitFailedStartup, "%v", err)
	}

	deps, err := buildDeps(rf.root, cfg, log)
	if err != nil {
		return fail(ExitFailedStartup, "building server dependencies: %w", err)
	}
	server.ApplyWorkerCount(cfg.Max)

	ctrl, err := server.ListenControl(cfg.RPC, server.ParseAllowFrom(cfg.RPCFrom), cfg.Salt, log)
	if err != nil {
		return fail(ExitFailedStartup, "binding control listener: %w", err)
	}

	reqLn, err := server.Bind(cfg.Bind)
	if err != nil {
		ctrl.Close()
		return fail(ExitFailedStartup, "binding request listener: %w", err)
	}

	tmpDir := filepath.Join(os.TempDir(), "tiny-web")
	srv := server.New(reqLn, server.ParseAllowFrom(cfg.BindFrom), protocol, deps, sessionCookieName, tmpDir, cfg.Salt, log)

	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Serve() }()

	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Serve() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-ctrlDone:
		if err != nil {
			log.Warn("control channel closed with error", zap.Error(err))
		}
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctrl.Close()
	}

	srv.Stop()
	<-srvDone
	return nil
}

// cmdStart spawns a detached "go" process against the same root and
// config, then returns immediately (spec §6 "start (spawn a detached
// server process and exit)").
func cmdStart(rf rootFlags) error {
	args := []string{"go", "--root", rf.root, "--config", rf.config, "--protocol", rf.protocol}
	cmd := exec.Command(os.Args[0], args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fail(ExitFailedStartup, "starting detached process: %w", err)
	}
	fmt.Printf("started (pid=%d)\n", cmd.Process.Pid)
	return nil
}

// cmdStop opens the control channel and sends the stop sentinel (spec
// §6 "stop (open the control channel, send the stop sentinel, await an
// 8-byte BE PID)").
func cmdStop(rf rootFlags) error {
	cfg, err := config.Load(filepath.Join(rf.root, rf.config))
	if err != nil {
		return fail(ExitFailedStartup, "loading config: %w", err)
	}
	pid, err := server.SendStop(cfg.RPC, cfg.Salt, controlDialTimeout)
	if err != nil {
		return fail(ExitFailedStartup, "sending stop sentinel: %w", err)
	}
	fmt.Printf("stopped (pid=%d)\n", pid)
	return nil
}

// cmdStatus is reserved (spec §6 "status (reserved)"). It reports
// whether something is listening on the control channel, without
// sending the stop sentinel (which would actually shut the process
// down).
func cmdStatus(rf rootFlags) error {
	cfg, err := config.Load(filepath.Join(rf.root, rf.config))
	if err != nil {
		return fail(ExitFailedStartup, "loading config: %w", err)
	}
	conn, err := server.DialControl(cfg.RPC, controlDialTimeout)
	if err != nil {
		fmt.Println("not running")
		return nil
	}
	conn.Close()
	fmt.Println("running")
	return nil
}

func loadConfigAndLogger(rf rootFlags) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(filepath.Join(rf.root, rf.config))
	if err != nil {
		return config.Config{}, nil, fail(ExitFailedStartup, "loading config: %w", err)
	}
	log, err := server.NewLogger(cfg.Log)
	if err != nil {
		return config.Config{}, nil, fail(ExitFailedStartup, "opening log sink: %w", err)
	}
	return cfg, log, nil
}

func protocolFromName(name string) (response.Protocol, error) {
	switch name {
	case "fastcgi", "":
		return response.FastCGI, nil
	case "scgi":
		return response.SCGI, nil
	case "uwsgi":
		return response.UWSGI, nil
	case "http":
		return response.HTTP, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", name)
	}
}

// buildDeps opens the database pool, runs the enabled-language query
// (original_source/src/sys/go.rs's Go::get_langs), and assembles the
// immutable, shared-by-reference action.Deps bundle (spec §5 "Shared
// resources").
func buildDeps(root string, cfg config.Config, log *zap.Logger) (action.Deps, error) {
	ctx := context.Background()

	maxDB := cfg.MaxDB
	if maxDB <= 0 {
		maxDB = 1
	}
	dial := pool.PostgresDialer(pool.PostgresConfig{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		User:     cfg.DBUser,
		Password: cfg.DBPwd,
		SSLMode:  cfg.SSLMode,
	})
	p := pool.New(ctx, maxDB, dial, log)

	items, err := loadLangItems(ctx, p)
	if err != nil {
		log.Warn("could not load enabled languages from the database; continuing with none", zap.Error(err))
		items = nil
	}
	bundle := lang.Load(root, cfg.Lang, items, log)

	c := cache.New()
	templates := action.LoadTemplates(root, log)
	resolver := route.New(c, p)

	return action.Deps{
		Engine:    Engine,
		Cache:     c,
		Pool:      p,
		Route:     resolver,
		Templates: templates,
		Lang:      bundle,
		Salt:      cfg.Salt,
		Log:       log,
	}, nil
}

// loadLangItems runs the enabled-language query this system's lang
// table is expected to expose: lang_id, lang, code, name, filtered by
// enable and ordered by sort (original_source/src/sys/go.rs's
// Go::get_langs).
func loadLangItems(ctx context.Context, p *pool.Pool) ([]lang.Item, error) {
	rows, err := p.Query(ctx, func(c pool.Conn) ([]pool.Row, error) {
		return c.Query(ctx, "SELECT lang_id, lang, code, name FROM lang WHERE enable ORDER BY sort")
	})
	if err != nil {
		return nil, err
	}

	items := make([]lang.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, lang.Item{
			ID:   toUint64(row["lang_id"]),
			Lang: toString(row["lang"]),
			Code: toString(row["code"]),
			Name: toString(row["name"]),
		})
	}
	return items, nil
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case int64:
		return uint64(n)
	case int32:
		return uint64(n)
	case int:
		return uint64(n)
	case uint64:
		return n
	default:
		return 0
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}
