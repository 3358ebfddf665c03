package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/coedit/pkg/models"
)

// AskCommand sends a free-form question about a text file and prints the
// model's answer.
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a free-form question about a text file",
		ArgsUsage: "FILE QUESTION",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("expected FILE and QUESTION arguments")
			}
			path, question := c.Args().Get(0), c.Args().Get(1)
			ctx := context.Background()

			sess, _, _, err := newFileSession(ctx, c, path)
			if err != nil {
				return err
			}

			err = awaitUpdate(sess, func() error {
				return sess.Ask(ctx, question)
			})
			if err != nil {
				return err
			}

			for _, reply := range sess.AskThread() {
				if reply.Role == models.RoleAssistant {
					fmt.Println(reply.Text)
				}
			}
			return nil
		},
	}
}
