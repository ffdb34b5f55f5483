package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			if cfg.Auth.Secret != "" {
				cfg.Auth.Secret = redacted
			}
			if len(cfg.Auth.Tokens) > 0 {
				tokens := make(map[string]string, len(cfg.Auth.Tokens))
				for _, uid := range cfg.Auth.Tokens {
					tokens[redacted+" "+uid] = uid
				}
				cfg.Auth.Tokens = tokens
			}
			if cfg.Orchestrator.Agent.Provider.APIKey != "" {
				cfg.Orchestrator.Agent.Provider.APIKey = redacted
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}
