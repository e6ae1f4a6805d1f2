package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

const historyName = ".recdb_history"

var errUnterminatedQuote = errors.New("unterminated quote")

// shellCommands are the commands available inside the shell.
var shellCommands = []string{"schema", "ls", "show", "add", "update", "rm", "book", "print-config"}

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive prompt",
		Long: "Run commands against one open connection until exit. " +
			"Arguments may be double-quoted, e.g. add --name \"Dogs With Tools\".",
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			return runShell(ctx, a, io)
		},
	}
}

// lineReader is satisfied by *liner.State.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanReader reads plain lines when input is not a terminal.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return r.sc.Text(), nil
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }

func runShell(ctx context.Context, a *app, o *IO) error {
	conn, closeConn, err := a.connect()
	if err != nil {
		return err
	}

	defer func() { _ = closeConn() }()

	session := *a
	session.shared = conn

	lines, history := a.newLineReader()
	defer lines.Close()

	o.Println("recdb shell. Type 'help' for commands.")

	for ctx.Err() == nil {
		line, err := lines.Prompt("recdb> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lines.AppendHistory(line)

		args, err := splitArgs(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			continue
		}

		switch name := args[0]; {
		case name == "exit" || name == "quit" || name == "q":
			history.save(a, lines)

			return nil

		case name == "help" || name == "?":
			printShellHelp(o, session.commands())

		case slices.Contains(shellCommands, name):
			// Fresh commands per line so flag values do not carry over.
			// Errors are printed by Run; the shell keeps going.
			_ = session.commands()[name].Run(ctx, o, args[1:])

		default:
			o.ErrPrintln("error: unknown command:", name, "(type 'help' for commands)")
		}
	}

	history.save(a, lines)

	return nil
}

// historyFile persists liner history. A zero value does nothing.
type historyFile struct {
	path string
}

func (h historyFile) save(a *app, lines lineReader) {
	st, ok := lines.(*liner.State)
	if !ok || h.path == "" {
		return
	}

	f, err := a.fs.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		a.log.Debug("cannot save history", "err", err)

		return
	}

	defer f.Close()

	if _, err := st.WriteHistory(f); err != nil {
		a.log.Debug("cannot save history", "err", err)
	}
}

// newLineReader returns liner when input is a terminal and a plain line
// scanner otherwise.
func (a *app) newLineReader() (lineReader, historyFile) {
	f, ok := a.in.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		in := a.in
		if in == nil {
			in = strings.NewReader("")
		}

		return &scanReader{sc: bufio.NewScanner(in)}, historyFile{}
	}

	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	st.SetCompleter(completeCommand)

	var h historyFile

	if home := a.env["HOME"]; home != "" {
		h.path = filepath.Join(home, historyName)

		if hf, err := a.fs.Open(h.path); err == nil {
			_, _ = st.ReadHistory(hf)
			_ = hf.Close()
		}
	}

	return st, h
}

func completeCommand(line string) []string {
	var out []string

	for _, name := range append(slices.Clone(shellCommands), "help", "exit") {
		if strings.HasPrefix(name, line) {
			out = append(out, name)
		}
	}

	return out
}

func printShellHelp(o *IO, commands map[string]*Command) {
	o.Println("Commands:")

	for _, name := range shellCommands {
		o.Println(commands[name].HelpLine())
	}

	o.Printf("  %-22s %s\n", "help", "Show this help")
	o.Printf("  %-22s %s\n", "exit", "Leave the shell")
}

// splitArgs splits a line on whitespace. Double quotes group words and a
// backslash escapes the next character inside them.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		hasArg  bool
	)

	runes := []rune(line)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case inQuote && r == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
		case r == '"':
			inQuote = !inQuote
			hasArg = true
		case !inQuote && (r == ' ' || r == '\t'):
			if hasArg {
				args = append(args, cur.String())
				cur.Reset()

				hasArg = false
			}
		default:
			cur.WriteRune(r)

			hasArg = true
		}
	}

	if inQuote {
		return nil, errUnterminatedQuote
	}

	if hasArg {
		args = append(args, cur.String())
	}

	return args, nil
}
