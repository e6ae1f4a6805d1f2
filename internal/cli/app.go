package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/calvinalkan/recdb/internal/client"
	"github.com/calvinalkan/recdb/internal/config"
	"github.com/calvinalkan/recdb/internal/contractor"
	"github.com/calvinalkan/recdb/internal/fs"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

// app carries the resolved configuration shared by every command.
type app struct {
	cfg config.Config
	log *slog.Logger
	fs  fs.FS
	in  io.Reader
	env map[string]string

	// shared is the session connection of the shell. Commands use it
	// instead of opening their own.
	shared contractor.Conn
}

// commandOrder is the order commands are listed in help.
var commandOrder = []string{
	"init", "schema", "ls", "show", "add", "update", "edit", "rm", "book", "serve", "shell", "print-config",
}

func (a *app) commands() map[string]*Command {
	return map[string]*Command{
		"init":         InitCmd(a),
		"schema":       SchemaCmd(a),
		"ls":           LsCmd(a),
		"show":         ShowCmd(a),
		"add":          AddCmd(a),
		"update":       UpdateCmd(a),
		"edit":         EditCmd(a),
		"rm":           RmCmd(a),
		"book":         BookCmd(a),
		"serve":        ServeCmd(a),
		"shell":        ShellCmd(a),
		"print-config": PrintConfigCmd(a),
	}
}

// connect returns a remote client when remote is configured, otherwise a
// service over the local data file. The returned close func must be called.
func (a *app) connect() (contractor.Conn, func() error, error) {
	if a.cfg.Remote != "" {
		c, err := client.New(a.cfg.Remote, client.Options{Logger: a.log})
		if err != nil {
			return nil, nil, err
		}

		a.log.Debug("using remote", "url", a.cfg.Remote)

		return c, func() error { return nil }, nil
	}

	svc, db, err := a.openLocal(nil)
	if err != nil {
		return nil, nil, err
	}

	return svc, db.Close, nil
}

// openLocal opens the configured data file as a contractor service.
func (a *app) openLocal(obs recdb.Observer) (*contractor.Service, *recdb.DB, error) {
	db, err := recdb.Open(a.cfg.DBFileAbs, recdb.Options{
		FS:         a.fs,
		Logger:     a.log,
		Observer:   obs,
		Exclusive:  a.cfg.Exclusive,
		SyncWrites: a.cfg.SyncWrites,
	})
	if err != nil {
		return nil, nil, err
	}

	svc, err := contractor.NewService(db, a.log)
	if err != nil {
		_ = db.Close()

		return nil, nil, err
	}

	return svc, db, nil
}

// withConn runs fn with a connection and closes it afterwards.
func (a *app) withConn(ctx context.Context, fn func(ctx context.Context, conn contractor.Conn) error) error {
	if a.shared != nil {
		return fn(ctx, a.shared)
	}

	conn, closeConn, err := a.connect()
	if err != nil {
		return err
	}

	err = fn(ctx, conn)

	if closeErr := closeConn(); closeErr != nil && err == nil {
		err = fmt.Errorf("close: %w", closeErr)
	}

	return err
}
