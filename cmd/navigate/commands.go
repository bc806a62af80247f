package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"safety-app/internal/config"
	"safety-app/internal/container"
	"safety-app/internal/navigation"
	"safety-app/pkg/logger"
)

type app struct {
	cfg *config.Config
	log *logger.Logger

	sessionID  string
	adminToken string
}

// RunResult is what the run command prints
type RunResult struct {
	Session string              `json:"session"`
	Page    navigation.PageInfo `json:"page"`
}

func newRootCmd(cfg *config.Config, log *logger.Logger) *cobra.Command {
	a := &app{cfg: cfg, log: log}

	root := &cobra.Command{
		Use:          "navigate",
		Short:        "Drive the site router headlessly",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.sessionID, "session", "", "session ID to resume; a new one is generated when empty")
	root.PersistentFlags().StringVar(&a.adminToken, "admin-token", "", "admin bearer token for protected routes")

	root.AddCommand(a.runCmd(), a.routesCmd(), a.clearCmd(), a.tokenCmd())
	return root
}

func (a *app) withContainer(fn func(c *container.Container) error) error {
	c, err := container.New(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			a.log.WithError(err).Warn("Failed to close stores")
		}
	}()
	return fn(c)
}

func (a *app) runCmd() *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "run [path|back|forward]...",
		Short: "Start at --from and apply each step in order",
		Example: `  navigate run /video1 /quiz1 back
  navigate run --session 7c9e... /quiz1`,
		RunE: func(cmd *cobra.Command, steps []string) error {
			if a.sessionID == "" {
				a.sessionID = uuid.NewString()
				fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", a.sessionID)
			}

			return a.withContainer(func(c *container.Container) error {
				session, err := c.NewSession(a.sessionID, from, func() string { return a.adminToken })
				if err != nil {
					return err
				}

				ctx := cmd.Context()
				if err := session.Router.Start(ctx); err != nil {
					return fmt.Errorf("start: %w", err)
				}

				for _, step := range steps {
					switch strings.ToLower(step) {
					case "back":
						if !session.Router.GoBack(ctx) {
							return fmt.Errorf("back: nothing to go back to")
						}
					case "forward":
						if !session.Router.GoForward(ctx) {
							return fmt.Errorf("forward: nothing to go forward to")
						}
					default:
						if err := session.Router.NavigateTo(ctx, step, nil, navigation.NavigateOptions{}); err != nil {
							return fmt.Errorf("navigate to %s: %w", step, err)
						}
					}
				}

				session.Router.Unload()
				return writeJSON(cmd.OutOrStdout(), RunResult{Session: session.ID, Page: session.Router.CurrentPageInfo()})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", navigation.DefaultPath, "initial location")
	return cmd
}

func (a *app) routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the route table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), navigation.DefaultRoutes())
		},
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [path]",
		Short: "Forget the saved page state of a session, for one path or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			return a.withContainer(func(c *container.Container) error {
				session, err := c.NewSession(a.sessionID, navigation.DefaultPath, func() string { return a.adminToken })
				if err != nil {
					return err
				}
				session.Router.ClearPageState(path)
				a.log.WithField("session", a.sessionID).WithField("path", path).Info("Page state cleared")
				return nil
			})
		},
	}
}

func (a *app) tokenCmd() *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token signed with ADMIN_JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withContainer(func(c *container.Container) error {
				token, err := c.AuthService().IssueAdminToken(subject)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject, recorded in the admin audit log")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
