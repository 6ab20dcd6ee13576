// sellerctl управляет заказами и наборами покупателя через клиентскую сессию.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/session"
)

const defaultConfigPath = "sellerctl.toml"

type command struct {
	usage string
	run   func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"bulk-status": {usage: "bulk-status -status <status> [-note n] [-tracking t -carrier c] <id>...", run: runBulkStatus},
	"ship":        {usage: "ship -tracking <t> -carrier <c> [-eta RFC3339] <id>", run: runShip},
	"deliver":     {usage: "deliver <id>", run: runDeliver},
	"move":        {usage: "move -column <status> [-tracking t -carrier c] <id>", run: runMove},
	"cart":        {usage: "cart list | add|remove|toggle <productId>...", run: runMembership(domain.MembershipCart)},
	"wishlist":    {usage: "wishlist list | add|remove|toggle <productId>...", run: runMembership(domain.MembershipWishlist)},
	"watch":       {usage: "watch [-kind cart|wishlist] [-interval 2s]", run: runWatch},
	"events":      {usage: "events [-brokers b1,b2] [-topic t] [-group g] [-oldest]", run: runEvents},
}

// environment — то, что нужно командам: настройки, вывод и фабрика сессий.
type environment struct {
	cfg    cliConfig
	out    io.Writer
	logger *log.Entry
	open   func(ctx context.Context, cfg session.Config, opts ...session.Option) (*session.Session, error)
}

func (e *environment) session(ctx context.Context, polling bool, opts ...session.Option) (*session.Session, error) {
	cfg := e.cfg.Session
	cfg.DisablePolling = !polling
	opts = append([]session.Option{session.WithLogger(e.logger)}, opts...)
	return e.open(ctx, cfg, opts...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		_, _ = fmt.Fprintf(os.Stderr, "sellerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sellerctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "path to TOML config (default "+defaultConfigPath+" if present)")
		baseURL    = fs.String("base-url", "", "fulfillment API base URL")
		customer   = fs.String("customer", "", "customer id for cart and wishlist")
		redisAddr  = fs.String("redis", "", "redis address for snapshot push")
		logLevel   = fs.String("log-level", "", "log level")
	)
	fs.Usage = func() { printUsage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := defaultCLIConfig()
	path := *configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	if path != "" {
		loaded, err := loadConfigFile(path, cfg)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			cfg.Session.BaseURL = *baseURL
		case "customer":
			cfg.Session.CustomerID = *customer
		case "redis":
			cfg.Session.RedisAddr = *redisAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.validate(); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return flag.ErrHelp
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}

	env := &environment{
		cfg:    cfg,
		out:    stdout,
		logger: newLogger(stderr, cfg.LogLevel),
		open:   session.Open,
	}
	return cmd.run(ctx, env, rest[1:])
}

func newLogger(w io.Writer, level string) *log.Entry {
	logger := log.New()
	logger.SetOutput(w)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.WarnLevel
	}
	logger.SetLevel(lvl)
	return logger.WithField("component", "sellerctl")
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(w, "usage: sellerctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	_, _ = fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}
