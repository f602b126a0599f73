package commands_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"solidtodo/internal/commands"
	"solidtodo/internal/config"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/testutil"
)

const docURL = "https://example.org/tasks.json"

func newConfig(t *testing.T, quiet bool) *config.Config {
	t.Helper()
	return &config.Config{
		Dir:      t.TempDir(),
		Quiet:    quiet,
		Settings: config.DefaultSettings(),
	}
}

// runCommand parses args with the command's flags and runs it against sess.
func runCommand(t *testing.T, cmd commands.Command, sess *testutil.FakeSession, args []string, quiet bool) (stdout, stderr string, code int) {
	t.Helper()
	return runWithConfig(t, cmd, sess, newConfig(t, quiet), args)
}

func runWithConfig(t *testing.T, cmd commands.Command, sess *testutil.FakeSession, cfg *config.Config, args []string) (stdout, stderr string, code int) {
	t.Helper()

	fs := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cmd.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	var outBuf, errBuf bytes.Buffer
	if sess == nil {
		code = cmd.Run(context.Background(), cfg, nil, fs.Args(), &outBuf, &errBuf)
	} else {
		code = cmd.Run(context.Background(), cfg, sess, fs.Args(), &outBuf, &errBuf)
	}
	return outBuf.String(), errBuf.String(), code
}

// sequentialIDs makes new task ids predictable.
func sequentialIDs(t *testing.T) {
	t.Helper()
	n := 0
	commands.NewID = func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
	t.Cleanup(func() { commands.NewID = nil })
}

func seeded(t *testing.T) *testutil.FakeSession {
	t.Helper()
	sess := testutil.NewFakeSession(true)
	sess.SetDocument(docURL, `[{"id":"a1","description":"buy milk","done":false},{"id":"b2","description":"write report","done":true}]`)
	return sess
}

func TestVersionCommand(t *testing.T) {
	stdout, stderr, code := runCommand(t, &commands.VersionCmd{}, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "solidtodo 0.1.0\n" {
		t.Errorf("expected version output, got %q", stdout)
	}
}

func TestHelpCommand(t *testing.T) {
	stdout, stderr, code := runCommand(t, &commands.HelpCmd{}, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") || !strings.Contains(stdout, "--url <url>") || !strings.Contains(stdout, "wins over a row number") {
		t.Errorf("unexpected help output %q", stdout)
	}
}

func TestListCommand_MissingURL(t *testing.T) {
	sess := seeded(t)
	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, sess, nil, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: document URL required (use --url)\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if stdout != "" || len(sess.Requests()) != 0 {
		t.Errorf("expected no output and no requests")
	}
}

func TestListCommand_NotLoggedIn(t *testing.T) {
	sess := testutil.NewFakeSession(false)
	_, stderr, code := runCommand(t, &commands.ListCmd{}, sess, []string{"--url", docURL}, false)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if stderr != "error: not logged in (run: solidtodo login)\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if len(sess.LoginCalls) != 0 {
		t.Error("list must not start a login")
	}
}

func TestListCommand_RestoreFailed(t *testing.T) {
	sess := testutil.NewFakeSession(true)
	sess.RestoreErr = errors.New("refresh failed")
	_, stderr, code := runCommand(t, &commands.ListCmd{}, sess, []string{"--url", docURL}, false)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.Contains(stderr, "refresh failed") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestListCommand_NotFoundIsEmpty(t *testing.T) {
	sess := testutil.NewFakeSession(true)
	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, sess, []string{"--url", docURL}, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "no tasks\n" {
		t.Errorf("expected 'no tasks', got %q", stdout)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if len(sess.Puts()) != 0 {
		t.Error("list must not write")
	}
}

func TestListCommand_Quiet(t *testing.T) {
	sess := testutil.NewFakeSession(true)
	stdout, _, code := runCommand(t, &commands.ListCmd{}, sess, []string{"--url", docURL}, true)

	if code != exitcode.Success || stdout != "" {
		t.Errorf("expected silent success, got %d %q", code, stdout)
	}
}

func TestListCommand_Rows(t *testing.T) {
	stdout, _, code := runCommand(t, &commands.ListCmd{}, seeded(t), []string{"--url", docURL}, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	expected := "   1  [ ] buy milk\n   2  [x] write report\n"
	if stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}
}

func TestListCommand_MalformedDocument(t *testing.T) {
	sess := testutil.NewFakeSession(true)
	sess.SetDocument(docURL, `not json`)
	stdout, stderr, code := runCommand(t, &commands.ListCmd{}, sess, []string{"--url", docURL}, false)

	if code != exitcode.Success {
		t.Errorf("load failures degrade silently, got exit %d", code)
	}
	if stdout != "no tasks\n" || stderr != "" {
		t.Errorf("unexpected output %q / %q", stdout, stderr)
	}
}

func TestAddCommand(t *testing.T) {
	sequentialIDs(t)
	sess := seeded(t)
	stdout, stderr, code := runCommand(t, &commands.AddCmd{}, sess, []string{"--url", docURL, "call", "the", "plumber"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (%s)", exitcode.Success, code, stderr)
	}
	expected := "   1  [ ] buy milk\n   2  [x] write report\n   3  [ ] call the plumber\n"
	if stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}

	puts := sess.Puts()
	want := `[{"id":"a1","description":"buy milk","done":false},{"id":"b2","description":"write report","done":true},{"id":"new-1","description":"call the plumber","done":false}]`
	if len(puts) != 1 || puts[0] != want {
		t.Errorf("unexpected saves %v", puts)
	}
}

func TestAddCommand_Quiet(t *testing.T) {
	sess := testutil.NewFakeSession(true)
	stdout, _, code := runCommand(t, &commands.AddCmd{}, sess, []string{"--url", docURL, "write report"}, true)

	if code != exitcode.Success || stdout != "" {
		t.Errorf("expected silent success, got %d %q", code, stdout)
	}
	if len(sess.Puts()) != 1 {
		t.Errorf("expected one save, got %v", sess.Puts())
	}
}

func TestAddCommand_NoText(t *testing.T) {
	for _, args := range [][]string{nil, {"   "}} {
		sess := testutil.NewFakeSession(true)
		_, stderr, code := runCommand(t, &commands.AddCmd{}, sess, append([]string{"--url", docURL}, args...), false)

		if code != exitcode.UserError {
			t.Errorf("args %q: expected exit code %d, got %d", args, exitcode.UserError, code)
		}
		if stderr != "error: task text required\n" {
			t.Errorf("args %q: unexpected stderr %q", args, stderr)
		}
		if len(sess.Requests()) != 0 {
			t.Errorf("args %q: expected no requests", args)
		}
	}
}

func TestAddCommand_SaveFailure(t *testing.T) {
	sess := testutil.NewFakeSession(true)
	sess.PutStatus = http.StatusForbidden
	stdout, stderr, code := runCommand(t, &commands.AddCmd{}, sess, []string{"--url", docURL, "write report"}, false)

	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	if !strings.HasPrefix(stderr, "error: save failed: PUT "+docURL+": status 403") {
		t.Errorf("unexpected stderr %q", stderr)
	}
	// The edit is still shown.
	if !strings.Contains(stdout, "[ ] write report") {
		t.Errorf("expected the list to render, got %q", stdout)
	}
}

func TestEditCommands_RefuseAfterFailedLoad(t *testing.T) {
	const stored = `[{"id":"a1","description":"buy milk","done":false},{"id":"b2","description":"write report","done":true}]`
	tests := []struct {
		name string
		cmd  commands.Command
		args []string
	}{
		{"add", &commands.AddCmd{}, []string{"--url", docURL, "new thing"}},
		{"done", &commands.DoneCmd{}, []string{"--url", docURL, "1"}},
		{"rm", &commands.RmCmd{}, []string{"--url", docURL, "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := seeded(t)
			sess.SetStatus(docURL, http.StatusInternalServerError)

			stdout, stderr, code := runCommand(t, tt.cmd, sess, tt.args, false)

			if code != exitcode.BackendError {
				t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
			}
			if !strings.HasPrefix(stderr, "error: backend error: document could not be loaded: GET "+docURL+": status 500") {
				t.Errorf("unexpected stderr %q", stderr)
			}
			if stdout != "" {
				t.Errorf("expected no output, got %q", stdout)
			}
			if len(sess.Puts()) != 0 {
				t.Errorf("expected no saves, got %v", sess.Puts())
			}
			if got := sess.Document(docURL); got != stored {
				t.Errorf("stored document changed: %s", got)
			}
		})
	}
}

func TestDoneCommand(t *testing.T) {
	tests := []struct {
		name string
		ref  string
	}{
		{"by row number", "1"},
		{"by id", "a1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := seeded(t)
			stdout, _, code := runCommand(t, &commands.DoneCmd{}, sess, []string{"--url", docURL, tt.ref}, false)

			if code != exitcode.Success {
				t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
			}
			if stdout != "   1  [x] buy milk\n   2  [x] write report\n" {
				t.Errorf("unexpected output %q", stdout)
			}
			if got := sess.Document(docURL); !strings.HasPrefix(got, `[{"id":"a1","description":"buy milk","done":true}`) {
				t.Errorf("unexpected document %s", got)
			}
		})
	}
}

func TestDoneCommand_Reopens(t *testing.T) {
	sess := seeded(t)
	stdout, _, code := runCommand(t, &commands.DoneCmd{}, sess, []string{"--url", docURL, "2"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !strings.Contains(stdout, "[ ] write report") {
		t.Errorf("expected task reopened, got %q", stdout)
	}
}

func TestDoneCommand_Errors(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		stderr string
	}{
		{"missing ref", []string{"--url", docURL}, "error: task reference required\n"},
		{"too many", []string{"--url", docURL, "1", "2"}, "error: too many arguments\n"},
		{"unknown number", []string{"--url", docURL, "9"}, "error: task not found: 9\n"},
		{"unknown id", []string{"--url", docURL, "zz"}, "error: task not found: zz\n"},
		{"missing url", []string{"1"}, "error: document URL required (use --url)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := seeded(t)
			_, stderr, code := runCommand(t, &commands.DoneCmd{}, sess, tt.args, false)

			if code != exitcode.UserError {
				t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
			}
			if stderr != tt.stderr {
				t.Errorf("expected %q, got %q", tt.stderr, stderr)
			}
			if len(sess.Puts()) != 0 {
				t.Error("expected no saves")
			}
		})
	}
}

func TestRmCommand(t *testing.T) {
	sess := seeded(t)
	stdout, _, code := runCommand(t, &commands.RmCmd{}, sess, []string{"--url", docURL, "b2"}, false)

	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "   1  [ ] buy milk\n" {
		t.Errorf("unexpected output %q", stdout)
	}
	if got := sess.Document(docURL); got != `[{"id":"a1","description":"buy milk","done":false}]` {
		t.Errorf("unexpected document %s", got)
	}
}

func TestRegistry_Aliases(t *testing.T) {
	for alias, name := range map[string]string{
		"toggle": "done",
		"create": "add",
		"delete": "rm",
		"ls":     "list",
	} {
		cmd, ok := commands.DefaultRegistry.Find(alias)
		if !ok || cmd.Name() != name {
			t.Errorf("alias %q should resolve to %q", alias, name)
		}
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	r := commands.NewRegistry()
	if err := r.Register(&commands.ListCmd{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&commands.ListCmd{}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if err := r.Register(&commands.RmCmd{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	all := r.All()
	if len(all) != 2 || all[0].Name() != "list" || all[1].Name() != "rm" {
		t.Errorf("expected [list rm], got %v", all)
	}
}

func TestUsesSession(t *testing.T) {
	tests := []struct {
		cmd  commands.Command
		want bool
	}{
		{&commands.ListCmd{}, true},
		{&commands.LoginCmd{}, true},
		{&commands.LogoutCmd{}, true},
		{&commands.TUICmd{}, true},
		{&commands.ImportGTasksCmd{}, true},
		{&commands.HelpCmd{}, false},
		{&commands.VersionCmd{}, false},
	}
	for _, tt := range tests {
		if got := commands.UsesSession(tt.cmd); got != tt.want {
			t.Errorf("UsesSession(%s) = %v, want %v", tt.cmd.Name(), got, tt.want)
		}
	}
}
