package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/contractor"
)

// SchemaCmd returns the schema command.
func SchemaCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("schema", flag.ContinueOnError),
		Usage: "schema",
		Short: "Show the data file layout",
		Long:  "Print the header of the data file: magic cookie, row offset, record length and fields.",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return a.withConn(ctx, func(ctx context.Context, conn contractor.Conn) error {
				schema, err := conn.Schema(ctx)
				if err != nil {
					return err
				}

				io.Printf("magic=0x%08x\n", schema.Magic)
				io.Printf("row_offset=%d\n", schema.RowOffset)
				io.Printf("record_length=%d\n", schema.RecordLength())
				io.Println()

				var b strings.Builder

				tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "FIELD\tLENGTH")

				for _, f := range schema.Fields {
					_, _ = fmt.Fprintf(tw, "%s\t%d\n", f.Name, f.Length)
				}

				_ = tw.Flush()

				io.Printf("%s", b.String())

				return nil
			})
		},
	}
}
