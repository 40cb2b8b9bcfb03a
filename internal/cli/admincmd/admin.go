// Package admincmd holds the database maintenance commands.
package admincmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuihairu/govmsg/internal/cli/servercmd"
	"github.com/cuihairu/govmsg/internal/repo/gorm/uow"
)

// NewMigrate returns the `govmsg migrate` command.
func NewMigrate() *cobra.Command {
	var cfgFile, profile string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := servercmd.Load(cmd, cfgFile, profile, nil)
			if err != nil {
				return err
			}
			gdb, err := servercmd.OpenDB(v)
			if err != nil {
				return err
			}
			if err := uow.AutoMigrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	cmd.Flags().StringVar(&profile, "profile", "", "overlay server.profiles.<name>")
	servercmd.Flags(cmd)
	return cmd
}

// NewSeed returns the `govmsg seed` command.
func NewSeed() *cobra.Command {
	var cfgFile, profile, seedFile string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create departments and users from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if seedFile == "" {
				return fmt.Errorf("--file required")
			}
			f, err := LoadSeed(seedFile)
			if err != nil {
				return err
			}
			v, err := servercmd.Load(cmd, cfgFile, profile, nil)
			if err != nil {
				return err
			}
			gdb, err := servercmd.OpenDB(v)
			if err != nil {
				return err
			}
			if err := uow.AutoMigrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			rep, err := Seed(cmd.Context(), uow.New(gdb), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "departments created: %d, users created: %d, skipped: %d\n", rep.Departments, rep.Users, rep.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	cmd.Flags().StringVar(&profile, "profile", "", "overlay server.profiles.<name>")
	cmd.Flags().StringVar(&seedFile, "file", "configs/seed.yaml", "seed file")
	servercmd.Flags(cmd)
	return cmd
}
