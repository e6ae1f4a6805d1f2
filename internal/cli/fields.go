package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/recdb/internal/contractor"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

var (
	errIDRequired = errors.New("record id is required")
	errNoFields   = errors.New("no field flags given")
)

// addFieldFlags registers one string flag per contractor field.
func addFieldFlags(fs *flag.FlagSet, verb string) {
	for _, name := range contractor.FieldNames() {
		fs.String(name, "", fmt.Sprintf("%s %s", verb, name))
	}
}

// fieldsFromFlags collects the field flags that were set on the command
// line. Flags set to "" are kept, so they clear a field in an update.
func fieldsFromFlags(fs *flag.FlagSet) contractor.Fields {
	var f contractor.Fields

	for _, name := range contractor.FieldNames() {
		if !fs.Changed(name) {
			continue
		}

		v, _ := fs.GetString(name)
		_ = f.Set(name, v)
	}

	return f
}

func parseID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errIDRequired
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: record id %q", recdb.ErrInvalidInput, args[0])
	}

	return id, nil
}

// formatTable renders contractors as aligned columns with a header row.
func formatTable(cs []contractor.Contractor) string {
	var b strings.Builder

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)

	header := append([]string{"ID"}, contractor.FieldNames()...)
	_, _ = fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t")))

	for _, c := range cs {
		_, _ = fmt.Fprintf(tw, "%d\t%s\n", c.ID, strings.Join(c.Strings(), "\t"))
	}

	_ = tw.Flush()

	return b.String()
}

// formatRecord renders one contractor as key=value lines.
func formatRecord(c contractor.Contractor) string {
	var b strings.Builder

	fmt.Fprintf(&b, "id=%d\n", c.ID)

	for i, name := range contractor.FieldNames() {
		fmt.Fprintf(&b, "%s=%s\n", name, c.Strings()[i])
	}

	return b.String()
}

func formatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}

	return string(data) + "\n", nil
}
