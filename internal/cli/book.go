package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/contractor"
)

var errOwnerRequired = errors.New("owner is required (or use --release)")

// BookCmd returns the book command.
func BookCmd(a *app) *Command {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	fs.Bool("release", false, "Clear the owner instead of setting it")

	return &Command{
		Flags: fs,
		Usage: "book <id> <owner> | book --release <id>",
		Short: "Book a contractor for a customer",
		Long: "Set the owner of a contractor to an 8-digit customer id. " +
			"Fails if another customer already holds the booking.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execBook(ctx, a, io, fs, args)
		},
	}
}

func execBook(ctx context.Context, a *app, io *IO, fs *flag.FlagSet, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	release, _ := fs.GetBool("release")

	if !release && len(args) < 2 {
		return errOwnerRequired
	}

	return a.withConn(ctx, func(ctx context.Context, conn contractor.Conn) error {
		if release {
			if err := conn.Unbook(ctx, id); err != nil {
				return err
			}

			io.Println("released", id)

			return nil
		}

		if err := conn.Book(ctx, id, args[1]); err != nil {
			return err
		}

		io.Println("booked", id, "for", args[1])

		return nil
	})
}
