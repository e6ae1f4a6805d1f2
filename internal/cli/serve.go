package cli

import (
	"context"
	"fmt"
	"net"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/metrics"
	"github.com/calvinalkan/recdb/internal/server"
)

// ServeCmd returns the serve command.
func ServeCmd(a *app) *Command {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.String("listen", "", "Address to listen on (overrides listen)")

	return &Command{
		Flags: fs,
		Usage: "serve [--listen <addr>]",
		Short: "Serve the data file over HTTP",
		Long: "Open the local data file and serve it over HTTP until interrupted. " +
			"Prometheus metrics are exposed at /metrics.",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execServe(ctx, a, io, fs)
		},
	}
}

func execServe(ctx context.Context, a *app, io *IO, fs *flag.FlagSet) error {
	if a.cfg.Remote != "" {
		io.Warn("remote is set", "serve always opens the local file; remote was ignored")
	}

	listen := a.cfg.Listen
	if fs.Changed("listen") {
		listen, _ = fs.GetString("listen")
	}

	m := metrics.New()

	svc, db, err := a.openLocal(m)
	if err != nil {
		return err
	}

	defer db.Close()

	srv := server.New(svc, server.Options{
		Logger:    a.log,
		Metrics:   m,
		RateLimit: a.cfg.RateLimit,
		RateBurst: a.cfg.RateBurst,
	})

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", listen, err)
	}

	io.Println("listening on", ln.Addr().String())

	return srv.Serve(ctx, ln)
}
