package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/naimnv/dganet/domains"
	"github.com/naimnv/dganet/export"
	"github.com/naimnv/dganet/nnet"
)

var exportCmd = &cobra.Command{
	Use:   "export <model.ckpt> <graph.json>",
	Short: "Export a saved model as a static compute graph",
	Long: `Trace one forward pass of a checkpoint at the full sequence width and
write the result as a static graph. The graph takes the encoded domains
and their true lengths, both with a free batch axis, and yields the
class scores. The step count is frozen at the model sequence width.

Examples:
  dganet export checkpoints/dga.ckpt dga_graph.json
  dganet export --check checkpoints/dga.ckpt dga_graph.json`,
	Args: cobra.ExactArgs(2),
	RunE: runExport,
}

var exportCheck bool

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().BoolVar(&exportCheck, "check", false, "verify the graph reproduces the model scores")
}

func runExport(cmd *cobra.Command, args []string) error {
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
	// trace at the full sequence width so the graph accepts any input
	// the model itself could score
	enc := domains.Encoder{MaxLen: net.MaxSeqLen}
	seq, n, err := enc.Encode(strings.Repeat("a", net.MaxSeqLen))
	if err != nil {
		return err
	}
	g := export.Trace(net, nnet.NewBatch([][]int64{seq}, []int{n}, nil), info.RunID)
	if err := g.Save(args[1]); err != nil {
		return err
	}
	log.Info().Str("path", args[1]).Int("steps", net.MaxSeqLen).
		Int("nodes", len(g.Nodes)).Int("initializers", len(g.Inits)).Msg("exported graph")

	if exportCheck {
		return checkGraph(g, net)
	}
	return nil
}

// checkGraph replays the graph over a few sample domains and compares
// the scores against the model.
func checkGraph(g *export.Graph, net *nnet.Network) error {
	samples := []string{"google", "wikipedia", "xkqjzwpqor", "qwzkvjhxpt", "a"}
	enc := domains.Encoder{MaxLen: net.MaxSeqLen}
	seqs, lens, err := enc.EncodeAll(samples)
	if err != nil {
		return err
	}
	scores, err := export.Run(g, net.Device(), seqs, lens)
	if err != nil {
		return err
	}
	logits := net.Forward(nnet.NewBatch(seqs, lens, nil))
	maxDiff := 0.0
	for j := range scores {
		for r, s := range scores[j] {
			maxDiff = math.Max(maxDiff, math.Abs(s-logits.At(r, j)))
		}
	}
	if maxDiff > 1e-9 {
		return fmt.Errorf("graph check failed: scores differ from the model by %g", maxDiff)
	}
	fmt.Printf("graph check passed: %d domains, max score difference %g\n", len(samples), maxDiff)
	return nil
}
