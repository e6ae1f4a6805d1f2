package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/contractor"
)

// LsCmd returns the ls command.
func LsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	addFieldFlags(fs, "Match")
	fs.Bool("exact", false, "Require fields to equal the given values instead of starting with them")
	fs.Bool("json", false, "Print JSON instead of a table")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List contractors",
		Long: "List contractors in record order. Field flags filter by prefix, " +
			"or by equality with --exact. Without field flags every live record is listed.",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execLs(ctx, a, io, fs)
		},
	}
}

func execLs(ctx context.Context, a *app, io *IO, fs *flag.FlagSet) error {
	exact, _ := fs.GetBool("exact")
	asJSON, _ := fs.GetBool("json")
	criteria := fieldsFromFlags(fs)

	return a.withConn(ctx, func(ctx context.Context, conn contractor.Conn) error {
		found, err := conn.Find(ctx, criteria, exact)
		if err != nil {
			return err
		}

		if asJSON {
			out, err := formatJSON(found)
			if err != nil {
				return err
			}

			io.Printf("%s", out)

			return nil
		}

		io.Printf("%s", formatTable(found))

		return nil
	})
}
