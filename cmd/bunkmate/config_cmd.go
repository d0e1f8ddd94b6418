package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/campwire/bunkmate/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and tune engine configuration",
		Long: `View and change the registered engine settings: confidence weights,
thresholds, solver constraint modes, and limits. Every key is typed
and bounded; invalid values are rejected before they are stored.

Settings live in the database, so running pipelines and solves always
see a consistent snapshot taken at run start.`,
	}

	cmd.AddCommand(configListCmd())
	cmd.AddCommand(configGetCmd())
	cmd.AddCommand(configSetCmd())

	return cmd
}

func configListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every setting with its current value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stored, err := store.AllConfigValues(ctx)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				headerStyle.Render("Key"), headerStyle.Render("Value"), headerStyle.Render("Description"))
			for _, def := range config.Registry() {
				value, ok := stored[def.Key.Path()]
				rendered := value
				if !ok {
					rendered = subtleStyle.Render(def.Default + " (default)")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", def.Key.Path(), rendered, def.Description)
			}
			return nil
		},
	}
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			def, ok := config.Lookup(path)
			if !ok {
				return fmt.Errorf("unknown configuration key %q", path)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			cfg, err := config.Load(ctx, store)
			if err != nil {
				return err
			}

			fmt.Printf("%s = %s\n", path, cfg.String(def.Key.Category, def.Key.Subcategory, def.Key.Name))
			fmt.Println(subtleStyle.Render(def.Description))
			return nil
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: `Set a configuration value. The value is validated against the key's
type, bounds, and enum before being stored; in-flight runs keep the
snapshot they started with.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, value := args[0], args[1]

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := config.Set(ctx, store, path, value); err != nil {
				return err
			}

			// Cross-key rules (threshold ordering) are checked on the combined
			// result so a set can never wedge future runs.
			if _, err := config.Load(ctx, store); err != nil {
				return fmt.Errorf("value stored but configuration is now invalid, fix before running: %w", err)
			}

			fmt.Println(formatSuccess(fmt.Sprintf("Set %s = %s", path, value)))
			return nil
		},
	}
}
