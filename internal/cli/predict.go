package cli

import (
	"log/slog"
	"time"

	snsl "github.com/Jacob-Zhou/Say-not-to-Supervised-Learning"
	"github.com/spf13/cobra"
)

func (c *CLI) newPredictCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:     "predict <modelfile> <conllufile>",
		Short:   "Predict heads for a CoNLL-U file",
		Args:    cobra.ExactArgs(2),
		Example: `  snsl predict model.json input.conllu -o parsed.conllu`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := snsl.Load(args[0])
			if err != nil {
				return err
			}
			slog.Info("Parsing", "input", args[1], "output", outFile)
			start := time.Now()
			if err := p.ParseFile(args[1], outFile); err != nil {
				return err
			}
			slog.Info("Done", "duration", time.Since(start))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "output", "o", "parsed.conllu", "Path of the parsed output file")
	return cmd
}
