package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/tars/internal/config"
	"github.com/hpungsan/tars/internal/errors"
	"github.com/hpungsan/tars/internal/mcp"
	"github.com/hpungsan/tars/internal/ops"
	"github.com/hpungsan/tars/internal/trigger"
	"github.com/hpungsan/tars/internal/web"
)

const triggerTimeout = 5 * time.Second

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "tars",
		Usage:   "Ambient assistant overlay: ask about what you just copied",
		Version: Version,
		Before: func(*cli.Context) error {
			return env.load()
		},
		After: func(*cli.Context) error {
			env.close()
			return nil
		},
		// No subcommand: the overlay on a terminal, the MCP server when piped.
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return cli.Exit(fmt.Sprintf("unknown command %q; run 'tars --help' for usage", c.Args().First()), 1)
			}
			if isTerminal(env.stdin) {
				return runOverlay(c.Context, env)
			}
			return serveMCP(c, env)
		},
		Commands: []*cli.Command{
			runCmd(env),
			askCmd(env),
			triggerCmd(env),
			logCmd(env),
			uiCmd(env),
			mcpCmd(env),
			configCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// runCmd creates the run command.
func runCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the overlay with hotkeys, trigger socket and config reload",
		Action: func(c *cli.Context) error {
			if !isTerminal(env.stdin) {
				return outputError(errors.NewInvalidRequest("the overlay needs an interactive terminal"))
			}
			if err := runOverlay(c.Context, env); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// triggerCmd creates the trigger command.
func triggerCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "trigger",
		Usage:     "Send an action to the running overlay (bind desktop hotkeys to this)",
		ArgsUsage: "<clipboard|screenshot|copy|dismiss|hide|state>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one action is required"))
			}
			action := strings.ToLower(c.Args().First())

			ctx, cancel := contextWithTimeout(c, triggerTimeout)
			defer cancel()

			resp, err := trigger.Send(ctx, env.socketPath(), trigger.Request{Action: action})
			if err != nil {
				return outputError(err)
			}
			if err := resp.Err(); err != nil {
				return outputError(err)
			}
			if resp.State != nil {
				return outputJSON(c.App.Writer, resp.State)
			}
			return outputJSON(c.App.Writer, map[string]any{"ok": true, "action": action})
		},
	}
}

// logCmd groups the turn log commands.
func logCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "log",
		Usage: "Browse and manage the turn log",
		Subcommands: []*cli.Command{
			logListCmd(env),
			logFetchCmd(env),
			logLatestCmd(env),
			logSearchCmd(env),
			logExportCmd(env),
			logImportCmd(env),
			logDeleteCmd(env),
			logPurgeCmd(env),
		},
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "Filter by session ID"},
		&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Filter by mode: clipboard|screenshot"},
		&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted turns"},
	}
}

// logListCmd creates the log list command.
func logListCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List turns, newest first",
		Flags: append(filterFlags(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		),
		Action: func(c *cli.Context) error {
			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.List(c.Context, database, ops.ListInput{
				SessionID:      optionalString(c, "session"),
				Mode:           optionalString(c, "mode"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// logFetchCmd creates the log fetch command.
func logFetchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch one turn by ID",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted turns"},
		},
		Action: func(c *cli.Context) error {
			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Fetch(c.Context, database, ops.FetchInput{
				ID:             c.Args().First(),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// logLatestCmd creates the log latest command.
func logLatestCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "latest",
		Usage: "Show the most recent turn",
		Flags: append(filterFlags(),
			&cli.BoolFlag{Name: "full", Usage: "Include the full question, response and context"},
		),
		Action: func(c *cli.Context) error {
			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			input := ops.LatestInput{
				SessionID:      optionalString(c, "session"),
				Mode:           optionalString(c, "mode"),
				IncludeDeleted: c.Bool("include-deleted"),
			}
			if c.Bool("full") {
				full := true
				input.IncludeResponse = &full
			}

			output, err := ops.Latest(c.Context, database, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// logSearchCmd creates the log search command.
func logSearchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search questions, responses and context",
		ArgsUsage: "<query>",
		Flags: append(filterFlags(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSearchLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		),
		Action: func(c *cli.Context) error {
			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Search(c.Context, database, ops.SearchInput{
				Query:          strings.Join(c.Args().Slice(), " "),
				SessionID:      optionalString(c, "session"),
				Mode:           optionalString(c, "mode"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// logExportCmd creates the log export command.
func logExportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export turns to a JSONL file",
		Flags: append(filterFlags(),
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.tars/exports/<filter>-<timestamp>.jsonl)"},
		),
		Action: func(c *cli.Context) error {
			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Export(c.Context, database, env.cfg, ops.ExportInput{
				Path:           c.String("path"),
				SessionID:      optionalString(c, "session"),
				Mode:           optionalString(c, "mode"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// logImportCmd creates the log import command.
func logImportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import turns from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|skip"},
		},
		Action: func(c *cli.Context) error {
			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Import(c.Context, database, env.cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// logDeleteCmd creates the log delete command.
func logDeleteCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a turn",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Delete(c.Context, database, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// logPurgeCmd creates the log purge command.
func logPurgeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted turns",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Purge(c.Context, database, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, output)
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the transcript viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Usage: "Listen address (default: web_addr from config)"},
		},
		Action: func(c *cli.Context) error {
			database, err := env.database(c.Context)
			if err != nil {
				return outputError(err)
			}

			addr := c.String("addr")
			if addr == "" {
				addr = env.cfg.WebAddr
			}
			srv, err := web.NewServer(database, env.cfg, Version, addr, env.logger)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			fmt.Fprintf(c.App.Writer, "Transcript viewer at http://%s\n", addr)
			if err := web.Run(c.Context, srv, env.logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the turn log and overlay control as MCP tools over stdio",
		Action: func(c *cli.Context) error {
			return serveMCP(c, env)
		},
	}
}

func serveMCP(c *cli.Context, env *appEnv) error {
	if unknown := mcp.ValidateDisabledTools(env.cfg.DisabledTools); len(unknown) > 0 {
		env.logger.Warn("unknown disabled_tools entries", zap.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(env.cfg.DisabledTypes); len(unknown) > 0 {
		env.logger.Warn("unknown disabled_types entries", zap.Strings("types", unknown))
	}

	database, err := env.database(c.Context)
	if err != nil {
		return outputError(err)
	}
	if err := mcp.Run(database, env.cfg, env.socketPath(), Version); err != nil {
		return outputError(errors.NewInternal(err))
	}
	return nil
}

// configCmd creates the config command.
func configCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect the effective configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "print",
				Usage: "Print the merged config as TOML (API key redacted)",
				Action: func(c *cli.Context) error {
					for _, w := range env.cfg.Validate() {
						fmt.Fprintf(c.App.ErrWriter, "warning: %s\n", w)
					}
					return printConfig(c.App.Writer, env.cfg)
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file path",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(c.App.Writer, config.Path(env.baseDir))
					return err
				},
			},
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) error {
	redacted := *cfg
	if redacted.APIKey != "" {
		redacted.APIKey = "<redacted>"
	}
	return toml.NewEncoder(w).Encode(redacted)
}

// Helper functions

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var tErr *errors.TarsError
	if stderrors.As(err, &tErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// optionalString returns a pointer to a non-empty flag value.
func optionalString(c *cli.Context, name string) *string {
	if v := c.String(name); v != "" {
		return &v
	}
	return nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
