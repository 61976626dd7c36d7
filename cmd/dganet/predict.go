package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/naimnv/dganet/nnet"
)

var predictCmd = &cobra.Command{
	Use:   "predict <model.ckpt> [domain ...]",
	Short: "Classify domain names with a saved model",
	Long: `Classify domains given as arguments, or read from a file with one
domain per line, and print the predicted class with its probability in
input order. The model state is left untouched.

Examples:
  dganet predict checkpoints/dga.ckpt google.com xkqjzwpqor.net
  dganet predict --input suspects.txt checkpoints/dga.ckpt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

var predictInput string

func init() {
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVarP(&predictInput, "input", "i", "", "file with one domain per line, - for stdin")
}

func runPredict(cmd *cobra.Command, args []string) error {
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
	names := args[1:]
	if predictInput != "" {
		fromFile, err := readDomains(predictInput)
		if err != nil {
			return err
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		return fmt.Errorf("no domains given")
	}
	log.Debug().Str("run", info.RunID).Int("domains", len(names)).Msg("loaded checkpoint")

	classes, probs, err := net.Classify(names)
	if err != nil {
		return err
	}
	for i, name := range names {
		fmt.Printf("%-40s %-8s %6.2f%%\n", name, className(classes[i]), probs[i]*100)
	}
	return nil
}

func className(class int) string {
	switch class {
	case 0:
		return "benign"
	case 1:
		return "dga"
	}
	return fmt.Sprint("class ", class)
}

func readDomains(path string) ([]string, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
	}
	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			names = append(names, name)
		}
	}
	return names, sc.Err()
}
