package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/coedit/pkg/models"
)

// CollabCommand runs a whole-document collaboration pass over a text file
// and prints (or applies) the suggestions the model proposes.
func CollabCommand() *cli.Command {
	return &cli.Command{
		Name:      "collab",
		Usage:     "Run an AI collaboration pass over a text file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "apply",
				Usage: "accept every suggestion and write the file back",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one FILE argument")
			}
			path := c.Args().First()
			ctx := context.Background()

			sess, buf, log, err := newFileSession(ctx, c, path)
			if err != nil {
				return err
			}

			err = awaitUpdate(sess, func() error {
				return sess.RunCollaborationPass(ctx)
			})
			if err != nil {
				return err
			}

			convs := sess.Conversations()
			if len(convs) == 0 {
				fmt.Println("No suggestions.")
				return nil
			}

			for i, conv := range convs {
				if conv.Status != models.StatusSuggestionReady {
					continue
				}
				fmt.Printf("%d. %q -> %q\n", i+1, conv.SelectedText, conv.AISuggestion)
				if conv.Explanation != "" {
					fmt.Printf("   %s\n", conv.Explanation)
				}
			}

			if !c.Bool("apply") {
				return nil
			}
			for _, conv := range convs {
				if conv.Status != models.StatusSuggestionReady {
					continue
				}
				if err := sess.Accept(conv.ID); err != nil {
					log.Warn().Err(err).Str("conversation", conv.ID).Msg("could not apply suggestion")
				}
			}
			if err := os.WriteFile(path, []byte(buf.PlainText()), 0644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Printf("Applied suggestions to %s\n", path)
			return nil
		},
	}
}
