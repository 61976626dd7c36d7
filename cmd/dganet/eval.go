package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/naimnv/dganet/domains"
	"github.com/naimnv/dganet/nnet"
	"github.com/naimnv/dganet/stats"
)

var evalCmd = &cobra.Command{
	Use:   "eval <model.ckpt> <data.csv>",
	Short: "Score a labelled domain list against a saved model",
	Long: `Evaluate a checkpoint against a labelled CSV domain list and report
accuracy together with the confusion matrix, treating the generated
class as positive.

Examples:
  dganet eval checkpoints/dga_20250301-102410.ckpt holdout.csv`,
	Args: cobra.ExactArgs(2),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	dev, err := selectDevice(conf, log)
	if err != nil {
		return err
	}
	net, info, err := nnet.LoadCheckpoint(args[0], dev)
	if err != nil {
		return err
	}
	if confPath != "" {
		if err := conf.Compatible(net.Config); err != nil {
			return err
		}
	}
	recs, err := domains.Load(args[1])
	if err != nil {
		return err
	}
	log.Info().Str("run", info.RunID).Time("saved", info.SavedAt).
		Int("samples", len(recs)).Msg("loaded checkpoint")

	dset := nnet.NewDataset(recs, net.MaxSeqLen, net.TestBatch, nil)
	pred := make([]int, dset.Samples)
	acc := net.Accuracy(dset, pred)
	names, labels := recs.Strings(), recs.Labels()
	var cm stats.Confusion
	var missed []string
	for i, label := range labels {
		cm.Add(pred[i], label)
		if pred[i] != label {
			missed = append(missed, names[i])
		}
	}
	if len(missed) > 0 {
		log.Debug().Int("count", len(missed)).
			Strs("domains", missed[:min(len(missed), 10)]).Msg("misclassified")
	}
	fmt.Println(cm)
	fmt.Printf("accuracy:  %6.2f%%\n", acc*100)
	fmt.Printf("precision: %6.2f%%\n", cm.Precision()*100)
	fmt.Printf("recall:    %6.2f%%\n", cm.Recall()*100)
	fmt.Printf("F1 score:  %6.2f%%\n", cm.F1()*100)
	return nil
}
