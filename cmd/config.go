package main

import (
	"net/url"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/place2dxf/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(redacted(*cfg))
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// redacted masks the password in the archive DSN.
func redacted(c config.Config) config.Config {
	if c.Archive.DatabaseURL == "" {
		return c
	}
	u, err := url.Parse(c.Archive.DatabaseURL)
	if err != nil || u.User == nil {
		return c
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
		c.Archive.DatabaseURL = u.String()
	}
	return c
}
