package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recdb/internal/cli"
)

func Test_Bare_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	exitCode := cli.Run(nil, &stdout, &stderr, []string{"recdb"}, nil, nil)

	assert.Equal(t, 0, exitCode)
	assert.Empty(t, stderr.String())
	cli.AssertContains(t, stdout.String(), "recdb - fixed-width record store")
	cli.AssertContains(t, stdout.String(), "--cwd")
	cli.AssertContains(t, stdout.String(), "book <id> <owner>")
}

func Test_Invalid_Global_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--invalid-flag", "ls")

	assert.Equal(t, 1, exitCode)
	assert.Empty(t, stdout)
	cli.AssertContains(t, stderr, "unknown flag")
	cli.AssertContains(t, stderr, "--invalid-flag")
	cli.AssertContains(t, stderr, "Global flags:")
	cli.AssertContains(t, stderr, "--remote")
}

func Test_Global_Flag_Without_Value_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--db")

	cli.AssertContains(t, stderr, "flag requires an argument: --db")
}

func Test_Unknown_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("frobnicate")

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
	cli.AssertContains(t, stderr, "Commands:")
}

func Test_Command_Help_When_Help_Flag_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("ls", "--help")

	cli.AssertContains(t, stdout, "Usage: recdb ls [flags]")
	cli.AssertContains(t, stdout, "--exact")
	cli.AssertContains(t, stdout, "--specialties")
}

func Test_Init_Creates_Data_File_Once(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("init")

	cli.AssertContains(t, stdout, "created "+c.DBPath())

	data := c.ReadDB()
	require.GreaterOrEqual(t, len(data), 10)
	assert.Equal(t, []byte{0, 0, 2, 3}, data[:4], "magic cookie")

	stderr := c.MustFail("init")
	cli.AssertContains(t, stderr, "already exists")
}

func Test_Init_Creates_Parent_Directories_When_DB_Flag_Nested(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("--db", "data/nested/c.db", "init")

	_, err := os.Stat(filepath.Join(c.Dir, "data", "nested", "c.db"))
	require.NoError(t, err)

	stdout := c.MustRun("--db", "data/nested/c.db", "ls")
	cli.AssertContains(t, stdout, "ID")
}

func Test_Contractor_Lifecycle_When_Driven_From_CLI(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")

	assert.Equal(t, "0", c.MustRun("add", "--name", "Dogs With Tools", "--location", "Smallville",
		"--specialties", "Roofing", "--size", "7", "--rate", "$35.00"))
	assert.Equal(t, "1", c.MustRun("add", "--name", "Dogs R Us", "--location", "Metropolis"))

	show := c.MustRun("show", "0")
	cli.AssertContains(t, show, "id=0")
	cli.AssertContains(t, show, "name=Dogs With Tools")
	cli.AssertContains(t, show, "rate=$35.00")
	assert.True(t, strings.HasSuffix(show, "owner="), "empty owner is last: %q", show)

	ls := c.MustRun("ls", "--name", "Dogs")
	cli.AssertContains(t, ls, "Dogs With Tools")
	cli.AssertContains(t, ls, "Dogs R Us")

	ls = c.MustRun("ls", "--name", "Dogs", "--exact")
	cli.AssertNotContains(t, ls, "Dogs With Tools")

	c.MustRun("update", "1", "--rate", "$20")
	cli.AssertContains(t, c.MustRun("show", "1"), "rate=$20")

	assert.Equal(t, "booked 0 for 12345678", c.MustRun("book", "0", "12345678"))
	cli.AssertContains(t, c.MustFail("book", "0", "87654321"), "already booked")
	assert.Equal(t, "released 0", c.MustRun("book", "--release", "0"))

	assert.Equal(t, "deleted 0", c.MustRun("rm", "0"))
	cli.AssertContains(t, c.MustFail("show", "0"), "not found")

	// The freed slot is reused.
	assert.Equal(t, "0", c.MustRun("add", "--name", "Reused"))
}

func Test_Edit_Applies_Changed_Lines_When_Editor_Rewrites_File(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")
	c.MustRun("add", "--name", "Bitter Homes", "--location", "Gotham", "--rate", "$50")

	script := filepath.Join(c.Dir, "fake-editor")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+
		"sed -e 's/^location=.*/location=Metropolis/' -e '/^rate=/d' \"$1\" > \"$1.tmp\" && mv \"$1.tmp\" \"$1\"\n"), 0o700))

	c.Env["EDITOR"] = script
	c.Env["TMPDIR"] = c.Dir

	assert.Equal(t, "updated 0", c.MustRun("edit", "0"))

	show := c.MustRun("show", "0")
	cli.AssertContains(t, show, "location=Metropolis")
	cli.AssertContains(t, show, "rate=$50")

	_, err := os.Stat(filepath.Join(c.Dir, "recdb-0.edit"))
	assert.True(t, os.IsNotExist(err), "temp file removed")
}

func Test_Edit_Reports_No_Changes_When_File_Untouched(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")
	c.MustRun("add", "--name", "Moonlight")

	c.Env["EDITOR"] = "true"
	c.Env["TMPDIR"] = c.Dir

	assert.Equal(t, "no changes to 0", c.MustRun("edit", "0"))
	cli.AssertContains(t, c.MustFail("edit", "9"), "not found")
}

func Test_Ls_Prints_JSON_When_Json_Flag_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")
	c.MustRun("add", "--name", "Ace")

	assert.JSONEq(t,
		`[{"id":0,"name":"Ace","location":"","specialties":"","size":"","rate":"","owner":""}]`,
		c.MustRun("ls", "--json"))

	c.MustRun("rm", "0")
	assert.JSONEq(t, `[]`, c.MustRun("ls", "--json"))
}

func Test_Commands_Fail_When_Arguments_Invalid(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")
	c.MustRun("add", "--name", "Ace")

	testCases := []struct {
		args []string
		want string
	}{
		{[]string{"show"}, "record id is required"},
		{[]string{"show", "abc"}, "invalid input"},
		{[]string{"add"}, "no field flags given"},
		{[]string{"update", "0"}, "no field flags given"},
		{[]string{"book", "0"}, "owner is required"},
		{[]string{"book", "0", "123"}, "8-digit"},
		{[]string{"rm", "42"}, "not found"},
		{[]string{"ls", "--colour", "red"}, "unknown flag"},
	}

	for _, testCase := range testCases {
		_, stderr, code := c.Run(testCase.args...)
		assert.Equal(t, 1, code, "args %v", testCase.args)
		cli.AssertContains(t, stderr, testCase.want)
	}
}

func Test_Commands_Fail_When_Data_File_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("ls")

	cli.AssertContains(t, stderr, "io failure")
}

func Test_Schema_Prints_Header_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")

	stdout := c.MustRun("schema")
	cli.AssertContains(t, stdout, "magic=0x00000203")
	cli.AssertContains(t, stdout, "record_length=184")
	cli.AssertContains(t, stdout, "specialties  64")
}

func Test_Print_Config_Shows_Sources_When_Project_Config_Present(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, `"db_file": "recdb.db"`)
	cli.AssertContains(t, stdout, "(defaults only)")

	c.WriteConfig(`{
		// comments are allowed
		"db_file": "other.db",
		"rate_limit": 5,
	}`)

	stdout = c.MustRun("print-config")
	cli.AssertContains(t, stdout, `"db_file": "other.db"`)
	cli.AssertContains(t, stdout, "db_file="+filepath.Join(c.Dir, "other.db"))
	cli.AssertContains(t, stdout, "project_config="+filepath.Join(c.Dir, ".recdb.json"))

	stdout = c.MustRun("--db", "flag.db", "print-config")
	cli.AssertContains(t, stdout, `"db_file": "flag.db"`)
}

func Test_Init_Saves_Config_When_Requested(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("--db", "saved.db", "init", "--save-config")

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, `"db_file": "saved.db"`)

	_, stderr, code := c.Run("--db", "second.db", "init", "--save-config")
	assert.Equal(t, 1, code, "warning sets exit code")
	cli.AssertContains(t, stderr, "warning: config not saved")
}

func Test_Shell_Runs_Commands_When_Input_Piped(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")

	input := strings.Join([]string{
		`add --name "Dogs With Tools" --location Smallville`,
		`# comments are skipped`,
		`show 0`,
		`ls --exact --name Dogs`,
		`bogus`,
		`add --name "unterminated`,
		`help`,
		`exit`,
		`show 0`,
	}, "\n")

	stdout, stderr, code := c.RunWithInput(input, "shell")

	assert.Equal(t, 0, code, "stderr: %s", stderr)
	cli.AssertContains(t, stdout, "recdb shell")
	cli.AssertContains(t, stdout, "name=Dogs With Tools")
	cli.AssertContains(t, stdout, "location=Smallville")
	cli.AssertContains(t, stdout, "Leave the shell")
	cli.AssertContains(t, stderr, "unknown command: bogus")
	cli.AssertContains(t, stderr, "unterminated quote")
	assert.Equal(t, 1, strings.Count(stdout, "id=0"), "commands after exit must not run")
}

func Test_Shell_Does_Not_Carry_Flags_Between_Lines(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")
	c.MustRun("add", "--name", "Ace")
	c.MustRun("add", "--name", "Bob")

	stdout, _, code := c.RunWithInput("ls --name Ace\nls\n", "shell")
	require.Equal(t, 0, code)

	assert.Equal(t, 2, strings.Count(stdout, "Ace"))
	assert.Equal(t, 1, strings.Count(stdout, "Bob"))
}

// syncBuffer is a bytes.Buffer safe for a concurrent writer and reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func Test_Serve_Answers_Remote_Commands_Until_Signalled(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("init")
	c.MustRun("add", "--name", "Local Co")

	var stdout, stderr syncBuffer

	sigCh := make(chan os.Signal, 1)
	done := make(chan int, 1)

	go func() {
		done <- cli.Run(nil, &stdout, &stderr,
			[]string{"recdb", "--cwd", c.Dir, "serve", "--listen", "127.0.0.1:0"}, c.Env, sigCh)
	}()

	var addr string

	require.Eventually(t, func() bool {
		for line := range strings.Lines(stdout.String()) {
			if after, ok := strings.CutPrefix(line, "listening on "); ok {
				addr = strings.TrimSpace(after)

				return true
			}
		}

		return false
	}, 5*time.Second, 10*time.Millisecond, "stderr: %s", stderr.String())

	remote := cli.NewCLI(t)
	url := "http://" + addr

	assert.Equal(t, "1", remote.MustRun("--remote", url, "add", "--name", "Remote Co"))
	cli.AssertContains(t, remote.MustRun("--remote", url, "ls"), "Local Co")
	cli.AssertContains(t, remote.MustRun("--remote", url, "show", "1"), "name=Remote Co")
	cli.AssertContains(t, remote.MustFail("--remote", url, "show", "7"), "not found")
	cli.AssertContains(t, remote.MustRun("--remote", url, "schema"), "record_length=184")

	sigCh <- syscall.SIGTERM

	select {
	case code := <-done:
		assert.Equal(t, 0, code, "stderr: %s", stderr.String())
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after signal")
	}

	cli.AssertContains(t, c.MustRun("show", "1"), "name=Remote Co")
}
