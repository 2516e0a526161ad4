package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vincentbai/mindfulweb-agent/internal/appconfig"
	"github.com/vincentbai/mindfulweb-agent/internal/handlers"
)

var ctlCommands = []string{
	handlers.TypeCheckConnection,
	handlers.TypeTestConnection,
	handlers.TypeGetTrackingStatus,
	handlers.TypeSetTrackingEnabled,
	handlers.TypeGetTodayStats,
	handlers.TypeUpdateDomainExceptions,
	handlers.TypeUpdateBackendURL,
}

func newCtlCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var enabled bool
	var domainList []string
	var backendURL string
	cmd := &cobra.Command{
		Use:       "ctl COMMAND",
		Short:     "Send a command to a running agent",
		Long:      "Send a command to a running agent. Commands: " + strings.Join(ctlCommands, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: ctlCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				addr = cfg.Agent.ListenAddr
			}
			command, err := buildCommand(args[0], cmd.Flags().Changed("enabled"), enabled, cmd.Flags().Changed("domains"), domainList, cmd.Flags().Changed("url"), backendURL)
			if err != nil {
				return err
			}
			out, err := postCommand(cmd.Context(), http.DefaultClient, addr, command)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&addr, "addr", "", "agent address (defaults to agent.listen_addr)")
	cmd.Flags().BoolVar(&enabled, "enabled", false, "value for SET_TRACKING_ENABLED")
	cmd.Flags().StringSliceVar(&domainList, "domains", nil, "domains for UPDATE_DOMAIN_EXCEPTIONS")
	cmd.Flags().StringVar(&backendURL, "url", "", "url for UPDATE_BACKEND_URL")
	return cmd
}

// buildCommand maps CLI flags onto the command envelope. Only flags the user
// set are sent so the agent can reject missing fields itself.
func buildCommand(name string, hasEnabled, enabled, hasDomains bool, domainList []string, hasURL bool, backendURL string) (map[string]any, error) {
	typ := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	known := false
	for _, candidate := range ctlCommands {
		if candidate == typ {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	command := map[string]any{"type": typ}
	if hasEnabled {
		command["enabled"] = enabled
	}
	if hasDomains {
		if domainList == nil {
			domainList = []string{}
		}
		command["domains"] = domainList
	}
	if hasURL {
		command["url"] = backendURL
	}
	return command, nil
}
