package cli

import (
	"fmt"
	"log/slog"
	"time"

	snsl "github.com/Jacob-Zhou/Say-not-to-Supervised-Learning"
	"github.com/spf13/cobra"
)

func (c *CLI) newEvaluateCommand() *cobra.Command {
	var dataFile string
	var punct bool

	cmd := &cobra.Command{
		Use:     "evaluate <modelfile>",
		Short:   "Evaluate a trained parser on a held-out treebank",
		Args:    cobra.ExactArgs(1),
		Example: `  snsl evaluate model.json --data dev.conllu`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := snsl.Load(args[0])
			if err != nil {
				return err
			}
			slog.Info("Evaluating", "data", dataFile)
			start := time.Now()
			m, err := p.EvaluateFile(dataFile, snsl.EvalConfig{SkipPunct: !punct})
			if err != nil {
				return err
			}
			slog.Debug("Evaluation completed", "duration", time.Since(start))
			fmt.Println(m)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "dev.conllu", "Path to the evaluation treebank")
	cmd.Flags().BoolVar(&punct, "punct", false, "Include punctuation in the score")
	return cmd
}
