package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mobsim/internal/config"
	"mobsim/internal/observability"
)

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg      config.Config
	log      *zap.Logger
	closeLog func()
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: zap.NewNop(), closeLog: func() {}}

	root := &cobra.Command{
		Use:           "mobsim",
		Short:         "Tick-driven mob behavior simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log, a.closeLog = observability.NewStdout(cfg.Logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.closeLog()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./mobsim.yaml)")
	root.PersistentFlags().String("data", "", "runtime data directory")
	root.PersistentFlags().String("configs", "", "catalog and tuning directory")
	root.PersistentFlags().String("world", "", "world id")
	bindFlag(a.v, "paths.data_dir", root.PersistentFlags().Lookup("data"))
	bindFlag(a.v, "paths.configs_dir", root.PersistentFlags().Lookup("configs"))
	bindFlag(a.v, "world.id", root.PersistentFlags().Lookup("world"))

	root.AddCommand(newServeCmd(a), newReplayCmd(a), newInspectCmd(a), newAdminCmd())
	return root
}
