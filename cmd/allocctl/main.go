// Command allocctl is the operator console for food allocations: it lists
// and inspects allocations, creates new ones through the allocation wizard,
// accepts or rejects served families and follows processing live.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukerupert/foodalloc/internal/backend"
	"github.com/dukerupert/foodalloc/internal/config"
	"github.com/dukerupert/foodalloc/internal/database"
	"github.com/dukerupert/foodalloc/internal/logging"
	"github.com/dukerupert/foodalloc/internal/notify"
	"github.com/dukerupert/foodalloc/internal/session"
	"github.com/dukerupert/foodalloc/internal/store"
)

const usage = `usage: allocctl [-config file] <command> [args]

commands:
  creatable                     report whether a new allocation may be started
  list [-status S] [-no N] [-page P]
                                list allocations
  show <allocation-id>          show an allocation with family fulfilment
  create -families IDS -inventory ID:QTY[:PER_FAMILY] ... [-days N] [-diversification N]
                                create an allocation
  accept <allocation-id> <allocation-family-id>
  reject <allocation-id> <allocation-family-id>
  watch [allocation-id]         follow allocations live
  notifications [-n N]          show recent notifications
`

// app carries the collaborators shared by every command.
type app struct {
	cfg    *config.Config
	api    *backend.Client
	tokens session.Source
	notes  *notify.Center
	nstore *store.NotificationStore
	out    io.Writer
	logger *slog.Logger
}

func main() {
	configPath := flag.String("config", "foodalloc.yaml", "path to configuration file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "allocctl: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(cfg.Notifications.DBPath, database.Client)
	if err != nil {
		slog.Error("failed to open notification database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var tokens session.Source = session.Static(cfg.Auth.Token)
	if cfg.Auth.Token == "" {
		tokens = session.NewPasswordSource(cfg.API.BaseURL, cfg.Auth.Username, cfg.Auth.Password)
	}

	nstore := store.NewNotificationStore(db)
	a := &app{
		cfg:    cfg,
		api:    backend.NewClient(backend.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout}, tokens, logger.With("component", "backend")),
		tokens: tokens,
		nstore: nstore,
		out:    os.Stdout,
		logger: logger,
	}
	a.notes = notify.NewCenter(logger.With("component", "notify"),
		notify.LogSink(logger.With("component", "notify")),
		notify.StoreSink(nstore),
		notify.SinkFunc(a.printNote),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "creatable":
		return a.creatable(ctx)
	case "list":
		return a.list(ctx, args)
	case "show":
		return a.show(ctx, args)
	case "create":
		return a.create(ctx, args)
	case "accept":
		return a.act(ctx, args, true)
	case "reject":
		return a.act(ctx, args, false)
	case "watch":
		return a.watch(ctx, args)
	case "notifications":
		return a.notifications(args)
	}
	return errUsage
}

func (a *app) printNote(_ context.Context, n notify.Note) error {
	_, err := fmt.Fprintf(a.out, "[%s] %s\n", n.Level, n.Text)
	return err
}
