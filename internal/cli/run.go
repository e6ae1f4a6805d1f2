package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/calvinalkan/recdb/internal/config"
	"github.com/calvinalkan/recdb/internal/fs"
	"github.com/calvinalkan/recdb/internal/logging"
)

// Error variables for global flag parsing.
var (
	ErrFlagRequiresArg = errors.New("flag requires an argument")
	ErrUnknownFlag     = errors.New("unknown flag")
	ErrUnknownCommand  = errors.New("unknown command")
)

const (
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

// Run is the main entry point. Returns exit code.
//
// A value on sigCh cancels the context handed to the command, which stops
// a running server or shell. sigCh may be nil.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < 2 {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printGlobalFlags(errOut)

		return 1
	}

	if len(flags.remaining) == 0 || flags.remaining[0] == "-h" || flags.remaining[0] == helpFlag {
		printUsage(out)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride:  flags.workDir,
		ConfigPath:       flags.configPath,
		DBFileOverride:   flags.dbFile,
		RemoteOverride:   flags.remote,
		LogLevelOverride: flags.logLevel,
		Env:              env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	log, err := logging.New(errOut, logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case sig := <-sigCh:
				log.Info("received signal, stopping", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	a := &app{cfg: cfg, log: log, fs: fs.NewReal(), in: in, env: env}
	commands := a.commands()

	name := flags.remaining[0]

	cmd, ok := commands[name]
	if !ok {
		fprintln(errOut, "error:", fmt.Errorf("%w: %s", ErrUnknownCommand, name))
		fprintln(errOut)
		printUsage(errOut)

		return 1
	}

	o := NewIO(out, errOut)

	if code := cmd.Run(ctx, o, flags.remaining[1:]); code != 0 {
		return code
	}

	return o.Finish()
}

type globalFlags struct {
	workDir    string
	configPath string
	dbFile     string
	remote     string
	logLevel   string
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// valueFlags maps each long global flag taking a value to its destination.
func (flags *globalFlags) valueFlags() map[string]*string {
	return map[string]*string{
		"--cwd":       &flags.workDir,
		"--config":    &flags.configPath,
		"--db":        &flags.dbFile,
		"--remote":    &flags.remote,
		"--log-level": &flags.logLevel,
	}
}

var shortFlags = map[string]string{"-C": "--cwd", "-c": "--config"}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// -C<dir> without a space
	if after, ok := strings.CutPrefix(arg, "-C"); ok && after != "" {
		flags.workDir = after

		return consumedOne, nil
	}

	long := arg
	if l, ok := shortFlags[arg]; ok {
		long = l
	}

	dests := flags.valueFlags()

	if dst, ok := dests[long]; ok {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", ErrFlagRequiresArg, arg)
		}

		*dst = args[idx+1]

		return consumedTwo, nil
	}

	if name, value, ok := strings.Cut(arg, "="); ok {
		if dst, ok := dests[name]; ok {
			*dst = value

			return consumedOne, nil
		}
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", ErrUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printGlobalFlags(w io.Writer) {
	fprintln(w, `Global flags:
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
      --db <file>        Data file (overrides db_file)
      --remote <url>     Talk to a recdb server instead of a local file
      --log-level <lvl>  debug, info, warn or error
  -h, --help             Show help`)
}

func printUsage(w io.Writer) {
	fprintln(w, `recdb - fixed-width record store for contractor bookings

Usage: recdb [global flags] <command> [args]`)
	fprintln(w)
	printGlobalFlags(w)
	fprintln(w)
	fprintln(w, "Commands:")

	a := &app{}
	for _, name := range commandOrder {
		fprintln(w, a.commands()[name].HelpLine())
	}
}
