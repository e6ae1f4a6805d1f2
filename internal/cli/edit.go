package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/recdb/internal/contractor"
	"github.com/calvinalkan/recdb/pkg/recdb"
)

var (
	errNoEditorFound = errors.New("no editor found (set editor in config or $EDITOR)")
	errEditorFailed  = errors.New("editor failed")
)

// EditCmd returns the edit command.
func EditCmd(a *app) *Command {
	return &Command{
		Usage: "edit <id>",
		Short: "Edit a contractor in $EDITOR",
		Long: `Write a contractor as name=value lines to a temp file, open it in an editor
and apply the changed lines as an update. Removing a line leaves the field
unchanged; the id line is ignored.

Editor lookup: editor in config, then $EDITOR, then vi, then nano.`,
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execEdit(ctx, a, io, args)
		},
	}
}

func execEdit(ctx context.Context, a *app, io *IO, args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}

	editor, err := resolveEditor(a.cfg.Editor, a.env)
	if err != nil {
		return err
	}

	return a.withConn(ctx, func(ctx context.Context, conn contractor.Conn) error {
		before, err := conn.Get(ctx, id)
		if err != nil {
			return err
		}

		path := editTempPath(a.env, id)
		if err := os.WriteFile(path, []byte(formatRecord(before)), 0o600); err != nil {
			return fmt.Errorf("writing temp file: %w", err)
		}

		defer func() { _ = os.Remove(path) }()

		if err := runEditor(ctx, editor, path); err != nil {
			return err
		}

		edited, err := parseRecordFile(path)
		if err != nil {
			return err
		}

		changed := changedFields(before, edited)
		if changed.IsEmpty() {
			io.Println("no changes to", id)

			return nil
		}

		if err := conn.Update(ctx, id, changed); err != nil {
			return err
		}

		io.Println("updated", id)

		return nil
	})
}

// parseRecordFile reads name=value lines. Blank lines and # comments are
// skipped, unknown names are rejected.
func parseRecordFile(path string) (contractor.Fields, error) {
	file, err := os.Open(path)
	if err != nil {
		return contractor.Fields{}, fmt.Errorf("open temp file: %w", err)
	}

	defer func() { _ = file.Close() }()

	var f contractor.Fields

	scanner := bufio.NewScanner(file)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return contractor.Fields{}, fmt.Errorf("%w: line %d: expected name=value", recdb.ErrInvalidInput, lineNo)
		}

		if name == "id" {
			continue
		}

		if err := f.Set(name, value); err != nil {
			return contractor.Fields{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return contractor.Fields{}, fmt.Errorf("scan temp file: %w", err)
	}

	return f, nil
}

// changedFields keeps only the fields of edited that differ from before.
func changedFields(before contractor.Contractor, edited contractor.Fields) contractor.Fields {
	after := edited.Apply(before)

	var f contractor.Fields

	old, now := before.Strings(), after.Strings()

	for i, name := range contractor.FieldNames() {
		if old[i] != now[i] {
			_ = f.Set(name, now[i])
		}
	}

	return f
}

// resolveEditor picks the editor: configured, then $EDITOR, then vi, then nano.
func resolveEditor(configured string, env map[string]string) (string, error) {
	for _, candidate := range []string{configured, env["EDITOR"], "vi", "nano"} {
		if candidate == "" {
			continue
		}

		if _, err := exec.LookPath(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errNoEditorFound
}

func runEditor(ctx context.Context, editor, path string) error {
	cmd := exec.CommandContext(ctx, editor, path)

	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: exit code %d", errEditorFailed, exitErr.ExitCode())
		}

		return fmt.Errorf("%w: %w", errEditorFailed, err)
	}

	return nil
}

// editTempPath honours $TMPDIR from env before os.TempDir.
func editTempPath(env map[string]string, id int64) string {
	tmpDir := env["TMPDIR"]
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}

	return filepath.Join(tmpDir, fmt.Sprintf("recdb-%d.edit", id))
}
