package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/blueberrycongee/reasoncache"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

type reasonFlags struct {
	strategy string
	layer    string
	depth    int
	layers   []string
	across   bool
	file     string
}

func newReasonCmd(opts *rootOptions) *cobra.Command {
	f := &reasonFlags{}
	cmd := &cobra.Command{
		Use:   "reason [json]",
		Short: "Reason once about a JSON record and print the result",
		Long: `Reads a JSON object from the argument, from --file, or from stdin, runs
one reasoning call and prints the result as JSON. With --across or --layers
the record is reasoned at several layers and the results are integrated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args, f.file)
			if err != nil {
				return err
			}
			return runReason(cmd.Context(), opts, f, input, cmd)
		},
	}
	cmd.Flags().StringVarP(&f.strategy, "strategy", "s", "", "reasoning strategy")
	cmd.Flags().StringVarP(&f.layer, "layer", "l", "", "abstraction layer")
	cmd.Flags().IntVarP(&f.depth, "depth", "d", 0, "reasoning depth")
	cmd.Flags().StringSliceVar(&f.layers, "layers", nil, "reason across these layers")
	cmd.Flags().BoolVar(&f.across, "across", false, "reason across every enabled layer")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "read the record from a file")
	return cmd
}

func readInput(cmd *cobra.Command, args []string, file string) (map[string]any, error) {
	var data []byte
	var err error
	switch {
	case len(args) == 1:
		data = []byte(args[0])
	case file != "":
		data, err = os.ReadFile(file)
	default:
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.NewInvalidArgumentError("no input record given")
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, errors.NewInvalidArgumentError("input must be a JSON object: %v", err)
	}
	return input, nil
}

func runReason(ctx context.Context, opts *rootOptions, f *reasonFlags, input map[string]any, cmd *cobra.Command) error {
	rt, err := opts.bootstrap(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	var out any
	if f.across || len(f.layers) > 0 {
		out, err = rt.engine.ReasonAcrossLayers(ctx, input, reasoncache.CrossLayerOptions{
			Strategy: reasoncache.Strategy(f.strategy),
			Layers:   f.layers,
			MaxDepth: f.depth,
		})
	} else {
		out, err = rt.engine.Reason(ctx, input, reasoncache.ReasonOptions{
			Strategy: reasoncache.Strategy(f.strategy),
			Layer:    f.layer,
			Depth:    f.depth,
		})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
