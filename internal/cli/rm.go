package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/contractor"
)

// RmCmd returns the rm command.
func RmCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: "rm <id>",
		Short: "Delete a contractor",
		Long:  "Mark a contractor record deleted. Its slot is reused by the next add.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			id, err := parseID(args)
			if err != nil {
				return err
			}

			return a.withConn(ctx, func(ctx context.Context, conn contractor.Conn) error {
				if err := conn.Delete(ctx, id); err != nil {
					return err
				}

				io.Println("deleted", id)

				return nil
			})
		},
	}
}
