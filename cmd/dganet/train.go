package main

import (
	"fmt"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"github.com/naimnv/dganet/domains"
	"github.com/naimnv/dganet/logger"
	"github.com/naimnv/dganet/nnet"
	"github.com/naimnv/dganet/stats"
)

var trainCmd = &cobra.Command{
	Use:   "train <data.csv>",
	Short: "Train a classifier on a labelled domain list",
	Long: `Train a classifier on a CSV file with domain and type columns, where
type 0 marks a benign domain and 1 a generated one. A held out fraction
of the data is scored after every epoch and the model is written to the
checkpoint directory when training ends.

Examples:
  dganet train dga_domains.csv
  dganet train -c small.yaml --set maxepoch=50 --set eta=0.05 dga_domains.csv
  dganet train --plot-dir runs/curves dga_domains.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

// Flags
var (
	trainCkptDir string
	trainPlotDir string
	trainQuiet   bool
)

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainCkptDir, "checkpoint-dir", "checkpoints", "directory for saved models")
	trainCmd.Flags().StringVar(&trainPlotDir, "plot-dir", "", "write loss and accuracy curves as SVG under this directory")
	trainCmd.Flags().BoolVarP(&trainQuiet, "quiet", "q", false, "disable the progress bar")
}

func runTrain(cmd *cobra.Command, args []string) error {
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
	recs, err := domains.Load(args[0])
	if err != nil {
		return err
	}
	rng, seed := nnet.NewRNG(conf.RandSeed)
	runID := uuid.NewString()
	benign, dga := classCounts(recs)
	log.Info().Str("run", runID).Int64("seed", seed).Str("device", dev.String()).
		Int("benign", benign).Int("dga", dga).Msg("loaded training data")

	train, test := nnet.Split(recs, conf.TestSplit, rng)
	trainData := nnet.NewDataset(train, conf.MaxSeqLen, conf.TrainBatch, rng)
	testData := nnet.NewDataset(test, conf.MaxSeqLen, conf.TestBatch, nil)
	log.Info().Int("train", trainData.Samples).Int("test", testData.Samples).
		Int("batches", trainData.Batches).Msg("split dataset")

	net := nnet.New(dev, conf)
	net.InitWeights(rng)
	fmt.Println(net)

	var bar *pb.ProgressBar
	if !trainQuiet {
		bar = pb.Full.New(conf.MaxEpoch * trainData.Batches)
		bar.Start()
		net.OnBatch = func(b, n int) { bar.Increment() }
	}
	tester := nnet.NewTestLogger(testData, logger.Named(log, "trainer"))
	nnet.Train(net, trainData, tester)
	if bar != nil {
		bar.Finish()
	}

	path, err := nnet.SaveTimestamped(net, trainCkptDir, runID)
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("saved checkpoint")
	if trainPlotDir != "" {
		if err := writeCurves(tester.Stats, trainPlotDir); err != nil {
			return err
		}
		log.Info().Str("dir", trainPlotDir).Msg("saved training curves")
	}
	return nil
}

func classCounts(recs domains.Records) (benign, dga int) {
	counts := recs.ClassCounts(2)
	return counts[0], counts[1]
}

func writeCurves(hist []stats.Stats, dir string) error {
	const w, h = 16 * vg.Centimeter, 10 * vg.Centimeter
	if err := stats.WriteSVG(stats.LossPlot(hist), w, h, filepath.Join(dir, "loss.svg")); err != nil {
		return err
	}
	names := nnet.StatsHeaders()[1:]
	return stats.WriteSVG(stats.AccuracyPlot(hist, names), w, h, filepath.Join(dir, "accuracy.svg"))
}
