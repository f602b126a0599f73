package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"solidtodo/internal/backend/googletasks"
	"solidtodo/internal/config"
	"solidtodo/internal/controller"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/session"
)

// Importer reads open task titles from another task service.
type Importer interface {
	OpenTasks(ctx context.Context, list string) ([]string, error)
}

// NewImporter creates the Google Tasks importer. Tests replace it.
var NewImporter = func(ctx context.Context, cfg *config.Config) (Importer, error) {
	client, err := googletasks.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// AuthorizeImporter runs the Google login. Tests replace it.
var AuthorizeImporter = googletasks.Authorize

func init() {
	Register(&ImportGTasksCmd{})
}

// ImportGTasksCmd implements the import-gtasks command.
type ImportGTasksCmd struct {
	urlFlag
	list  string
	login bool
}

func (c *ImportGTasksCmd) Name() string      { return "import-gtasks" }
func (c *ImportGTasksCmd) Aliases() []string { return nil }
func (c *ImportGTasksCmd) Synopsis() string  { return "Append open Google Tasks to the document" }
func (c *ImportGTasksCmd) Usage() string {
	return "solidtodo import-gtasks --url <url> [--list <list-name>] [--login]"
}
func (c *ImportGTasksCmd) NeedsAuth() bool { return true }

func (c *ImportGTasksCmd) RegisterFlags(fs *pflag.FlagSet) {
	c.register(fs)
	fs.StringVarP(&c.list, "list", "l", "", "")
	fs.BoolVar(&c.login, "login", false, "")
}

func (c *ImportGTasksCmd) Run(ctx context.Context, cfg *config.Config, sess session.Provider, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}
	if strings.TrimSpace(c.url) == "" {
		fmt.Fprintln(errOut, "error: document URL required (use --url)")
		return exitcode.UserError
	}

	importer, code := c.importer(ctx, cfg, errOut)
	if importer == nil {
		return code
	}

	titles, err := importer.OpenTasks(ctx, c.list)
	if err != nil {
		msg := err.Error()
		if strings.HasPrefix(msg, "list not found") || strings.HasPrefix(msg, "ambiguous list name") {
			fmt.Fprintf(errOut, "error: %s\n", msg)
			return exitcode.UserError
		}
		if errors.Is(err, googletasks.ErrNotAuthorized) {
			fmt.Fprintf(errOut, "error: auth error: %v\n", err)
			return exitcode.AuthError
		}
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	doc, code := openDocument(ctx, cfg, sess, c.url, out, errOut)
	if doc == nil {
		return code
	}
	if code := doc.writable(ctx, errOut); code != exitcode.Success {
		return code
	}

	// Titles already in the document are skipped so a second import does
	// not duplicate them.
	existing := make(map[string]bool)
	for _, task := range doc.ctrl.Tasks() {
		existing[task.Description] = true
	}
	imported := 0
	for _, title := range titles {
		if existing[title] {
			continue
		}
		existing[title] = true
		if code := doc.dispatch(ctx, controller.Add{Description: title}, errOut); code != exitcode.Success {
			doc.Close(ctx, false)
			return code
		}
		imported++
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "imported %d task(s)\n", imported)
	}
	return doc.Close(ctx, !cfg.Quiet)
}

// importer creates the importer, running the Google login first when there
// is no token yet or --login was given.
func (c *ImportGTasksCmd) importer(ctx context.Context, cfg *config.Config, errOut io.Writer) (Importer, int) {
	if c.login {
		if code := c.authorize(ctx, cfg, errOut); code != exitcode.Success {
			return nil, code
		}
	}

	importer, err := NewImporter(ctx, cfg)
	if errors.Is(err, googletasks.ErrNotAuthorized) && !c.login {
		if code := c.authorize(ctx, cfg, errOut); code != exitcode.Success {
			return nil, code
		}
		importer, err = NewImporter(ctx, cfg)
	}
	if errors.Is(err, googletasks.ErrNoCredentials) {
		printCredentialsHelp(cfg, errOut)
		return nil, exitcode.AuthError
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: auth error: %v\n", err)
		return nil, exitcode.AuthError
	}
	return importer, exitcode.Success
}

func (c *ImportGTasksCmd) authorize(ctx context.Context, cfg *config.Config, errOut io.Writer) int {
	err := AuthorizeImporter(ctx, cfg, errOut)
	if errors.Is(err, googletasks.ErrNoCredentials) {
		printCredentialsHelp(cfg, errOut)
		return exitcode.AuthError
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: auth error: %v\n", err)
		return exitcode.AuthError
	}
	return exitcode.Success
}

func printCredentialsHelp(cfg *config.Config, errOut io.Writer) {
	fmt.Fprintf(errOut, "error: %s not found in %s\n\n", config.GoogleClientFile, cfg.Dir)
	fmt.Fprintln(errOut, "To import from Google Tasks, you need OAuth credentials:")
	fmt.Fprintln(errOut, "")
	fmt.Fprintln(errOut, "1. Go to https://console.cloud.google.com/apis/credentials")
	fmt.Fprintln(errOut, "2. Enable the Google Tasks API for your project")
	fmt.Fprintln(errOut, "3. Create an OAuth client ID of type 'Desktop app' and download the JSON")
	fmt.Fprintf(errOut, "4. Save it as %s\n", cfg.GoogleClientPath())
}
