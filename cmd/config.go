package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/coedit/internal/config"
)

// ConfigCommand manages the coedit configuration file.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if path == "" {
						path = "coedit.toml"
					}
					if err := config.Init(path); err != nil {
						return err
					}
					fmt.Printf("Wrote %s\n", path)
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "Validate the configuration",
				Action: func(c *cli.Context) error {
					cfg, _, err := loadConfig(c)
					if err != nil {
						return err
					}
					if err := config.Validate(cfg); err != nil {
						return err
					}
					fmt.Println("Configuration OK.")
					return nil
				},
			},
		},
	}
}
