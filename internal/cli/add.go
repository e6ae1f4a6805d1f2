package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/contractor"
)

// AddCmd returns the add command.
func AddCmd(a *app) *Command {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	addFieldFlags(fs, "Set")

	return &Command{
		Flags: fs,
		Usage: "add --name <name> [flags]",
		Short: "Add a contractor",
		Long: "Store a new contractor and print its record id. Deleted slots are reused. " +
			"Values longer than a field are truncated.",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return execAdd(ctx, a, io, fs)
		},
	}
}

func execAdd(ctx context.Context, a *app, io *IO, fs *flag.FlagSet) error {
	f := fieldsFromFlags(fs)
	if f.IsEmpty() {
		return errNoFields
	}

	c := f.Apply(contractor.New("", "", "", "", ""))

	return a.withConn(ctx, func(ctx context.Context, conn contractor.Conn) error {
		id, err := conn.Create(ctx, c)
		if err != nil {
			return err
		}

		io.Println(id)

		return nil
	})
}
