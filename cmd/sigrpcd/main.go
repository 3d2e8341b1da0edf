// Program sigrpcd serves the demonstration arithmetic service over
// JSON-RPC 2.0.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/taskgroup"
	"github.com/mnehpets/sigrpc/config"
	"github.com/mnehpets/sigrpc/signature"
)

var flags struct {
	Config string `flag:"config,Path of the TOML configuration file"`
	Env    string `flag:"env,Path of a .env file to load"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: `Serve and inspect a signature-checked JSON-RPC 2.0 service.

Settings are read from the -config file, then the -env file, then
SIGRPC_* environment variables, each overriding the last.`,
		SetFlags: command.Flags(flax.MustBind, &flags),
		Commands: []*command.C{
			{
				Name: "serve",
				Help: "Serve the service until interrupted.",
				Run:  runServe,
			},
			{
				Name:  "check",
				Usage: "<signature>...",
				Help: `Parse procedure signatures and print their normal form.

A signature has the form name(param=<type>, opt=<type>?) -> <type>, where
each type is one of bit, num, str, arr, obj, nil or any.`,
				Run: runCheck,
			},
			{
				Name: "describe",
				Help: "Print the system.describe result for the configured service.",
				Run:  runDescribe,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flags.Config, flags.Env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runServe(env *command.Env) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.Log.SlogLevel())
	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	expvar.Publish("sigrpc", svc.Metrics())

	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     newMux(cfg, svc),
		ReadTimeout: cfg.Server.ReadTimeout.Std(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := taskgroup.New(nil)
	g.Go(func() error {
		defer stop()
		logger.Info("serving", "addr", srv.Addr, "path", cfg.Server.Path, "service", svc.Info().Name)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func runCheck(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("at least one signature is required")
	}
	var bad int
	for _, arg := range env.Args {
		sig, err := signature.Parse(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%q: %v\n", arg, err)
			bad++
			continue
		}
		fmt.Println(sig)
	}
	if bad != 0 {
		return fmt.Errorf("%d of %d signatures are invalid", bad, len(env.Args))
	}
	return nil
}

func runDescribe(env *command.Env) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := newService(cfg, newLogger(os.Stderr, cfg.Log.SlogLevel()))
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(svc.Describe(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
