package cli

import (
	"context"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/config"
	"github.com/calvinalkan/recdb/internal/contractor"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

// InitCmd returns the init command.
func InitCmd(a *app) *Command {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.Bool("save-config", false, "Also write the effective config to "+config.FileName)

	return &Command{
		Flags: fs,
		Usage: "init [flags]",
		Short: "Create an empty contractor data file",
		Long: "Create the configured data file with the contractor layout and no records. " +
			"The file must not exist yet.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execInit(a, io, fs)
		},
	}
}

func execInit(a *app, io *IO, fs *flag.FlagSet) error {
	if a.cfg.Remote != "" {
		io.Warn("remote is set", "init always creates a local file; remote was ignored")
	}

	path := a.cfg.DBFileAbs

	if err := a.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	db, err := recdb.Create(path, contractor.Schema(), recdb.Options{FS: a.fs, Logger: a.log})
	if err != nil {
		return err
	}

	if err := db.Close(); err != nil {
		return err
	}

	io.Println("created", path)

	if save, _ := fs.GetBool("save-config"); save {
		return saveProjectConfig(a, io)
	}

	return nil
}

func saveProjectConfig(a *app, io *IO) error {
	path := filepath.Join(a.cfg.EffectiveCwd, config.FileName)

	exists, err := a.fs.Exists(path)
	if err != nil {
		return err
	}

	if exists {
		io.Warn("config not saved", path+" already exists; edit it by hand")

		return nil
	}

	if err := config.Save(a.fs, path, a.cfg); err != nil {
		return err
	}

	io.Println("wrote", path)

	return nil
}
