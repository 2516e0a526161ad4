package main

import (
	"github.com/spf13/cobra"

	"github.com/vincentbai/mindfulweb-agent/internal/appconfig"
	"github.com/vincentbai/mindfulweb-agent/internal/collector"
	"github.com/vincentbai/mindfulweb-agent/internal/database"
	"pkt.systems/pslog"
)

func newCollectorCmd() *cobra.Command {
	var cfgPath string
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Run the reference event collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Collector.ListenAddr = listenAddr
			}

			db, err := database.Open(cmd.Context(), cfg.Collector.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			logger.Info("collector database ready", "path", cfg.Collector.DBPath)

			c, err := collector.New(db, cfg.Collector.ListenAddr, logger)
			if err != nil {
				return err
			}
			return c.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "override collector.listen_addr")
	return cmd
}
