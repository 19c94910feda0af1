package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/starford/vaultlinks/internal"
	"github.com/starford/vaultlinks/internal/links"
	"github.com/starford/vaultlinks/internal/localstore"
	"github.com/starford/vaultlinks/internal/mcpserver"
	"github.com/starford/vaultlinks/internal/models"
	"github.com/starford/vaultlinks/internal/session"
	"github.com/starford/vaultlinks/internal/vaultapi"
)

var stdout io.Writer = os.Stdout

// clientEnv is the client side wiring shared by the session and link commands.
type clientEnv struct {
	cfg    *internal.Config
	logger *slog.Logger
	store  *session.FileTokenStore
	sess   *session.Session
	links  *links.Manager
}

// newClientEnv builds the client and resumes the stored session. Logs go to
// stderr so stdout stays clean for command output.
func newClientEnv(ctx context.Context, cmd *cli.Command) (*clientEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := internal.NewLogger(cfg.App.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	api, err := vaultapi.New(cfg.Client.APIURL)
	if err != nil {
		return nil, err
	}
	fs, err := localstore.NewFS(cfg.Client.StateDir)
	if err != nil {
		return nil, err
	}
	store := session.NewFileTokenStore(fs)
	sess := session.New(api, store, cfg.Client.IdentityURL, session.WithLogger(logger))
	if err := sess.Resume(ctx); err != nil {
		return nil, err
	}

	return &clientEnv{
		cfg:    cfg,
		logger: logger,
		store:  store,
		sess:   sess,
		links:  links.NewManager(api, sess, links.WithLogger(logger)),
	}, nil
}

func (e *clientEnv) requireLogin() error {
	if !e.sess.Snapshot().Authenticated() {
		return errors.New("not logged in: run `vaultlinks login`")
	}
	return nil
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Print the identity provider URL and open it in a browser",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "redirect", Usage: "Return URL (defaults to client.app_origin)"},
			&cli.BoolFlag{Name: "no-browser", Usage: "Only print the URL"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newClientEnv(ctx, cmd)
			if err != nil {
				return err
			}
			redirect := cmd.String("redirect")
			if redirect == "" {
				redirect = env.cfg.Client.AppOrigin
			}
			u := env.sess.LoginURL(redirect)
			fmt.Fprintln(stdout, u)
			fmt.Fprintln(stdout, "After signing in, run: vaultlinks callback '<returned url>'")
			if cmd.Bool("no-browser") {
				return nil
			}
			if err := (links.BrowserOpener{}).Open(u); err != nil {
				env.logger.Warn("open browser failed", slog.String("error", err.Error()))
			}
			return nil
		},
	}
}

func callbackCommand() *cli.Command {
	return &cli.Command{
		Name:      "callback",
		Usage:     "Complete a login from the URL the identity provider returned to",
		ArgsUsage: "<url>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			raw := cmd.Args().First()
			if raw == "" {
				return errors.New("callback url is required")
			}
			env, err := newClientEnv(ctx, cmd)
			if err != nil {
				return err
			}
			clean, err := env.sess.HandleCallback(ctx, raw)
			if err != nil {
				return err
			}
			snap := env.sess.Snapshot()
			if !snap.Authenticated() {
				return errors.New("no session_id in callback url")
			}
			fmt.Fprintf(stdout, "Logged in as %s <%s>\n", snap.User.Name, snap.User.Email)
			fmt.Fprintln(stdout, clean)
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored session",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newClientEnv(ctx, cmd)
			if err != nil {
				return err
			}
			if err := env.sess.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Logged out")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newClientEnv(ctx, cmd)
			if err != nil {
				return err
			}
			snap := env.sess.Snapshot()
			if !snap.Authenticated() {
				fmt.Fprintln(stdout, "Not logged in")
				return nil
			}
			fmt.Fprintf(stdout, "%s <%s>\n", snap.User.Name, snap.User.Email)
			return nil
		},
	}
}

func linksCommand() *cli.Command {
	return &cli.Command{
		Name:  "links",
		Usage: "Manage vault links",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List your links",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
				Action: linksList,
			},
			{
				Name:  "add",
				Usage: "Add a link",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "Link URL (http:// or https://)"},
					&cli.StringFlag{Name: "name", Usage: "Display name"},
					&cli.StringFlag{Name: "access", Value: string(models.AccessRestricted), Usage: "Restricted, Anyone with link or Public"},
				},
				Action: linksAdd,
			},
			{
				Name:      "delete",
				Usage:     "Delete a link",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
				},
				Action: linksDelete,
			},
			{
				Name:      "open",
				Usage:     "Open a link in the browser",
				ArgsUsage: "<url>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					env, err := newClientEnv(ctx, cmd)
					if err != nil {
						return err
					}
					return env.links.Open(cmd.Args().First())
				},
			},
		},
	}
}

func linksList(ctx context.Context, cmd *cli.Command) error {
	env, err := newClientEnv(ctx, cmd)
	if err != nil {
		return err
	}
	if err := env.requireLogin(); err != nil {
		return err
	}
	list, err := env.links.List(ctx)
	if err != nil {
		if msg := env.links.Message(); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	if cmd.Bool("json") {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	printLinks(stdout, list)
	return nil
}

func printLinks(w io.Writer, list []models.VaultLink) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No links yet. Add one with `vaultlinks links add`.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACCESS\tURL")
	for _, l := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, l.Name, l.AccessLevel, l.URL)
	}
	_ = tw.Flush()
}

func linksAdd(ctx context.Context, cmd *cli.Command) error {
	env, err := newClientEnv(ctx, cmd)
	if err != nil {
		return err
	}
	if err := env.requireLogin(); err != nil {
		return err
	}
	link, err := env.links.Create(ctx, models.LinkInput{
		URL:         cmd.String("url"),
		Name:        cmd.String("name"),
		AccessLevel: models.AccessLevel(cmd.String("access")),
	})
	if err != nil {
		if msg := env.links.Message(); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintf(stdout, "Added %s (%s)\n", link.Name, link.ID)
	return nil
}

func linksDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.New("link id is required")
	}
	env, err := newClientEnv(ctx, cmd)
	if err != nil {
		return err
	}
	if err := env.requireLogin(); err != nil {
		return err
	}

	confirm := func(string) bool { return true }
	if !cmd.Bool("yes") {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("refusing to delete without a terminal: pass --yes")
		}
		confirm = promptConfirm(os.Stdin, stdout)
	}

	err = env.links.Delete(ctx, id, confirm)
	if errors.Is(err, links.ErrCancelled) {
		fmt.Fprintln(stdout, "Cancelled")
		return nil
	}
	if err != nil {
		if msg := env.links.Message(); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintf(stdout, "Deleted %s\n", id)
	return nil
}

// promptConfirm asks the delete question on out and reads y/yes from in.
func promptConfirm(in io.Reader, out io.Writer) links.Confirmer {
	return func(string) bool {
		fmt.Fprintf(out, "%s [y/N] ", links.ConfirmDeleteMsg)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve VaultLinks tools over MCP stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			env, err := newClientEnv(ctx, cmd)
			if err != nil {
				return err
			}

			// Pick up logins and logouts made from other terminals.
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				if err := env.sess.Watch(watchCtx, env.store.Path()); err != nil {
					env.logger.Warn("session watch stopped", slog.String("error", err.Error()))
				}
			}()

			srv := mcpserver.New(env.sess, env.links, env.cfg.Client.AppOrigin, env.cfg.Worker.Version)
			return srv.ServeStdio()
		},
	}
}
