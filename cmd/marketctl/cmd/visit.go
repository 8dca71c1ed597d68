package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bizmarket/marketplace/internal/client"
	"github.com/bizmarket/marketplace/internal/config"
	"github.com/bizmarket/marketplace/internal/guard"
	"github.com/bizmarket/marketplace/internal/navigation"
)

func newVisitCmd() *cobra.Command {
	var (
		email    string
		password string
		resume   string
		wait     time.Duration
	)
	c := &cobra.Command{
		Use:   "visit PATH",
		Short: "Visit a page through its route guard",
		Long: `Visit mounts the route guard of PATH and reports the decision.

When the visit is denied because nobody is signed in and --email is given,
marketctl logs in and waits for the client to resume the original visit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()

			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			history := navigation.NewHistory(func(e navigation.Entry) {
				fmt.Fprintf(out, "-> %s\n", e.Path)
			})
			app, err := client.NewApp(cfg, history, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			app.Start(ctx)

			var resumeState any
			if resume != "" {
				resumeState = resume
			}
			st, err := app.Visit(ctx, path, resumeState)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: %s\n", path, st)
			if st != guard.StateDenied || email == "" || app.Session().IsAuthenticated {
				return nil
			}

			u, err := app.Login(ctx, email, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(out, "signed in as %s (%s)\n", u.Email, u.Role)

			deadline := time.Now().Add(wait)
			for time.Now().Before(deadline) {
				if e, ok := history.Current(); ok && e.Path == path {
					fmt.Fprintf(out, "resumed %s\n", path)
					return nil
				}
				if g := app.Mounted(); g != nil && g.Reason() == guard.ReasonForbidden {
					return fmt.Errorf("%s is forbidden for role %s", path, u.Role)
				}
				time.Sleep(20 * time.Millisecond)
			}
			return fmt.Errorf("visit to %s was not resumed within %s", path, wait)
		},
	}
	c.Flags().StringVar(&email, "email", "", "log in with this email when the visit is denied")
	c.Flags().StringVar(&password, "password", "", "password for --email")
	c.Flags().StringVar(&resume, "resume", "", "resume state carried with the visit")
	c.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for the resumed visit")
	return c
}
