package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuihairu/govmsg/internal/cli/admincmd"
	"github.com/cuihairu/govmsg/internal/cli/common"
	"github.com/cuihairu/govmsg/internal/cli/servercmd"
)

func main() {
	root := &cobra.Command{Use: "govmsg", Short: "Government internal messaging service", SilenceUsage: true}

	root.AddCommand(servercmd.New())
	root.AddCommand(admincmd.NewMigrate())
	root.AddCommand(admincmd.NewSeed())

	// completion
	comp := &cobra.Command{Use: "completion [bash|zsh|fish|powershell]", Short: "Generate shell completion", Args: cobra.ExactArgs(1)}
	comp.RunE = func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return root.GenBashCompletion(os.Stdout)
		case "zsh":
			return root.GenZshCompletion(os.Stdout)
		case "fish":
			return root.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		return fmt.Errorf("unknown shell: %s", args[0])
	}
	root.AddCommand(comp)

	// config test
	cfg := &cobra.Command{Use: "config", Short: "Configuration helpers"}
	var cfgFile, profile string
	var strict bool
	cfgTest := &cobra.Command{Use: "test", Short: "Validate a server config file"}
	cfgTest.Flags().StringVar(&cfgFile, "config", "", "config file path")
	cfgTest.Flags().StringVar(&profile, "profile", "", "overlay server.profiles.<name>")
	cfgTest.Flags().BoolVar(&strict, "strict", true, "strict validation")
	cfgTest.RunE = func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			return fmt.Errorf("--config required")
		}
		v := common.NewViper()
		if err := common.LoadInto(v, cfgFile, nil, "server", profile); err != nil {
			return err
		}
		if err := common.ValidateServerConfig(v, strict); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "server config OK")
		return nil
	}
	cfg.AddCommand(cfgTest)
	root.AddCommand(cfg)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
