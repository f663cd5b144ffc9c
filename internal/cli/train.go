package cli

import (
	"log/slog"
	"time"

	snsl "github.com/Jacob-Zhou/Say-not-to-Supervised-Learning"
	"github.com/spf13/cobra"
)

func (c *CLI) newTrainCommand() *cobra.Command {
	var dataFile string
	config := snsl.DefaultTrainConfig()

	cmd := &cobra.Command{
		Use:   "train <modelfile>",
		Short: "Train a parser on a CoNLL-U treebank",
		Args:  cobra.ExactArgs(1),
		Example: `  snsl train model.json --data train.conllu
  snsl train model.json --data train.conllu --c1 0.1 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			modelPath := args[0]
			slog.Info("Training parser", "data", dataFile, "output", modelPath)
			start := time.Now()
			p, err := snsl.TrainFile(dataFile, config)
			if err != nil {
				return err
			}
			slog.Debug("Training completed", "duration", time.Since(start))
			if err := p.Save(modelPath); err != nil {
				return err
			}
			slog.Info("Model saved", "path", modelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "train.conllu", "Path to the training treebank")
	cmd.Flags().Float64Var(&config.C1, "c1", config.C1, "L1 regularization strength")
	cmd.Flags().Float64Var(&config.C2, "c2", config.C2, "L2 regularization strength")
	cmd.Flags().IntVar(&config.MaxIterations, "max-iterations", config.MaxIterations, "Maximum optimizer iterations")
	return cmd
}
