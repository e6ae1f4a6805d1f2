package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/contractor"
)

// UpdateCmd returns the update command.
func UpdateCmd(a *app) *Command {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	addFieldFlags(fs, "New")

	return &Command{
		Flags: fs,
		Usage: "update <id> [flags]",
		Short: "Change fields of a contractor",
		Long: "Overwrite the given fields of a contractor under its row lock. " +
			"Fields without a flag keep their stored value; --<field>= clears one.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execUpdate(ctx, a, io, fs, args)
		},
	}
}

func execUpdate(ctx context.Context, a *app, io *IO, fs *flag.FlagSet, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	f := fieldsFromFlags(fs)
	if f.IsEmpty() {
		return errNoFields
	}

	return a.withConn(ctx, func(ctx context.Context, conn contractor.Conn) error {
		if err := conn.Update(ctx, id, f); err != nil {
			return err
		}

		io.Println("updated", id)

		return nil
	})
}
