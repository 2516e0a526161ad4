package main

import (
	"github.com/spf13/cobra"

	"github.com/vincentbai/mindfulweb-agent/internal/agent"
	"github.com/vincentbai/mindfulweb-agent/internal/appconfig"
	"github.com/vincentbai/mindfulweb-agent/internal/database"
	"pkt.systems/pslog"
)

func newAgentCmd() *cobra.Command {
	var cfgPath string
	var listenAddr string
	var backendURL string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the focus tracking agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Agent.ListenAddr = listenAddr
			}
			if backendURL != "" {
				cfg.Backend.URL = backendURL
			}

			db, err := database.Open(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			logger.Info("agent database ready", "path", cfg.DBPath)

			a, err := agent.New(cmd.Context(), cfg, agent.Deps{DB: db, Logger: logger})
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "override agent.listen_addr")
	cmd.Flags().StringVar(&backendURL, "backend", "", "default backend url when none is stored")
	return cmd
}
