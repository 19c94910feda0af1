package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/vaultlinks/internal/worker"
)

// controlClient calls the /__worker routes of a running `serve`.
type controlClient struct {
	base  string
	token string
	http  *http.Client
}

func newControlClient(cmd *cli.Command) (*controlClient, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	base := cmd.String("addr")
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", cfg.App.HTTP.Port)
	}
	token := cmd.String("token")
	if token == "" && cfg.Auth.AuthEnabled() {
		token = cfg.Auth.Token
	}
	return &controlClient{
		base:  strings.TrimRight(base, "/") + "/__worker",
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *controlClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("worker unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("worker: %s %s: status %d: %s", method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func workerCommand() *cli.Command {
	action := func(fn func(context.Context, *cli.Command, *controlClient) error) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			c, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			return fn(ctx, cmd, c)
		}
	}

	return &cli.Command{
		Name:  "worker",
		Usage: "Talk to a running cache worker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Worker base URL (defaults to http://localhost:<app.http.port>)"},
			&cli.StringFlag{Name: "token", Usage: "Control token", Sources: cli.EnvVars("VAULTLINKS_CONTROL_TOKEN")},
		},
		Commands: []*cli.Command{
			{
				Name:  "state",
				Usage: "Show lifecycle state and live caches",
				Action: action(func(ctx context.Context, _ *cli.Command, c *controlClient) error {
					var info worker.Info
					if err := c.call(ctx, http.MethodGet, "/state", nil, &info); err != nil {
						return err
					}
					return printJSON(info)
				}),
			},
			{
				Name:  "version",
				Usage: "Ask the worker for its cache version",
				Action: action(func(ctx context.Context, _ *cli.Command, c *controlClient) error {
					var reply worker.Reply
					if err := c.call(ctx, http.MethodPost, "/message", worker.Message{Type: worker.MessageGetVersion}, &reply); err != nil {
						return err
					}
					fmt.Fprintln(stdout, reply.Version)
					return nil
				}),
			},
			{
				Name:  "skip-waiting",
				Usage: "Activate an installed worker immediately",
				Action: action(func(ctx context.Context, _ *cli.Command, c *controlClient) error {
					return c.call(ctx, http.MethodPost, "/message", worker.Message{Type: worker.MessageSkipWaiting}, nil)
				}),
			},
			{
				Name:  "sync",
				Usage: "Trigger a background sync",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tag", Value: worker.SyncTag, Usage: "Sync tag"},
				},
				Action: action(func(ctx context.Context, cmd *cli.Command, c *controlClient) error {
					return c.call(ctx, http.MethodPost, "/sync", map[string]string{"tag": cmd.String("tag")}, nil)
				}),
			},
			{
				Name:      "push",
				Usage:     "Deliver a push message",
				ArgsUsage: "[text]",
				Action: action(func(ctx context.Context, cmd *cli.Command, c *controlClient) error {
					var n worker.Notification
					if err := c.call(ctx, http.MethodPost, "/push", map[string]string{"data": cmd.Args().First()}, &n); err != nil {
						return err
					}
					return printJSON(n)
				}),
			},
			{
				Name:      "click",
				Usage:     "Simulate a notification action click",
				ArgsUsage: "<action>",
				Action: action(func(ctx context.Context, cmd *cli.Command, c *controlClient) error {
					var out map[string]any
					if err := c.call(ctx, http.MethodPost, "/notificationclick", map[string]string{"action": cmd.Args().First()}, &out); err != nil {
						return err
					}
					return printJSON(out)
				}),
			},
		},
	}
}
