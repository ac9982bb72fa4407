package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/serenityjs/plugin-registry/internal/catalog"
	"github.com/serenityjs/plugin-registry/internal/config"
	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/pkg/validate"
	"github.com/serenityjs/plugin-registry/internal/repository"
)

type app struct {
	configPath string
	stdout     io.Writer
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	a := &app{stdout: stdout}
	root := &cobra.Command{
		Use:           "plugin-registry",
		Short:         "Discover, review and serve topic-tagged plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (default: search /etc/plugin-registry, $HOME/.plugin-registry, .)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run discovery, the approval channel and the read API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.serve(cmd.Context())
			},
		},
		newDecisionCmd(a, models.DecisionApprove),
		newDecisionCmd(a, models.DecisionReject),
		newListCmd(a),
	)
	return root
}

// newDecisionCmd flips the approval flag in the registry directly. A running
// server caches newly approved plugins on its next discovery cycle.
func newDecisionCmd(a *app, action models.DecisionAction) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <plugin-id>",
		Short: fmt.Sprintf("Mark a plugin as %sd in the registry", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := validate.PluginID(args[0])
			if !ok {
				return fmt.Errorf("invalid plugin id %q", args[0])
			}
			return a.withRegistry(cmd.Context(), func(repo repository.PluginRepository) error {
				d := models.ApprovalDecision{Action: action, PluginID: id}
				if err := repo.SetApproval(cmd.Context(), id, d.Approved()); err != nil {
					if errors.Is(err, repository.ErrPluginNotFound) {
						return fmt.Errorf("plugin %d is not in the registry", id)
					}
					return err
				}
				fmt.Fprintln(a.stdout, catalog.AckMessage(d))
				return nil
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var approvedOnly bool
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List plugins known to the registry",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRegistry(cmd.Context(), func(repo repository.PluginRepository) error {
				plugins, err := repo.List(cmd.Context(), approvedOnly)
				if err != nil {
					return err
				}
				return writePluginTable(a.stdout, plugins)
			})
		},
	}
	cmd.Flags().BoolVar(&approvedOnly, "approved", false, "only list approved plugins")
	return cmd
}

func writePluginTable(out io.Writer, plugins []models.StoredPlugin) error {
	if len(plugins) == 0 {
		fmt.Fprintln(out, "No plugins registered.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tBRANCH\tAPPROVED\tURL")
	for _, p := range plugins {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n", p.ID, p.Name, p.Owner.Username, p.Branch, p.Approved, p.URL)
	}
	return tw.Flush()
}

func (a *app) withRegistry(ctx context.Context, fn func(repository.PluginRepository) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	repo, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo)
}
