package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/contractor"
)

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.Bool("json", false, "Print JSON")

	return &Command{
		Flags: fs,
		Usage: "show <id>",
		Short: "Show one contractor",
		Long:  "Display every field of a contractor record.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execShow(ctx, a, io, fs, args)
		},
	}
}

func execShow(ctx context.Context, a *app, io *IO, fs *flag.FlagSet, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	asJSON, _ := fs.GetBool("json")

	return a.withConn(ctx, func(ctx context.Context, conn contractor.Conn) error {
		c, err := conn.Get(ctx, id)
		if err != nil {
			return err
		}

		out := formatRecord(c)

		if asJSON {
			out, err = formatJSON(c)
			if err != nil {
				return err
			}
		}

		io.Printf("%s", out)

		return nil
	})
}
