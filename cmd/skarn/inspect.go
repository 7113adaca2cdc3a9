package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/skarn-ml/skarn/internal/logger"
	"github.com/skarn-ml/skarn/internal/tokenizer"
	"github.com/skarn-ml/skarn/internal/weightfile"
)

type inspectReport struct {
	Path             string `json:"path"`
	FileBytes        int64  `json:"file_bytes"`
	WeightElems      int    `json:"weight_elems"`
	Dim              int32  `json:"dim"`
	HiddenDim        int32  `json:"hidden_dim"`
	Layers           int32  `json:"layers"`
	Heads            int32  `json:"heads"`
	KVHeads          int32  `json:"kv_heads"`
	VocabSize        int32  `json:"vocab_size"`
	SeqLen           int32  `json:"seq_len"`
	SharedClassifier bool   `json:"shared_classifier"`
	TokenizerVocab   int    `json:"tokenizer_vocab"`
	MaxTokenLen      int    `json:"max_token_len"`
}

func inspectCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a llama2 checkpoint header and tokenizer",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit the report as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := loadOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			logger.Setup(opts.LogLevel, opts.LogFormat)

			tok, err := tokenizer.Load(tokenPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load tokenizer: %v", err), 1)
			}

			wf, err := weightfile.Open(modelPath, tok.VocabSize())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open checkpoint: %v", err), 1)
			}
			defer func() { _ = wf.Close() }()

			hdr := wf.Header()
			vocab := hdr.VocabSize
			if vocab < 0 {
				vocab = -vocab
			}
			report := inspectReport{
				Path:             modelPath,
				FileBytes:        wf.Size(),
				WeightElems:      wf.WeightElems(),
				Dim:              hdr.Dim,
				HiddenDim:        hdr.HiddenDim,
				Layers:           hdr.Layers,
				Heads:            hdr.Heads,
				KVHeads:          hdr.KVHeads,
				VocabSize:        vocab,
				SeqLen:           hdr.SeqLen,
				SharedClassifier: wf.SharedClassifier(),
				TokenizerVocab:   tok.VocabSize(),
				MaxTokenLen:      tok.MaxTokenLen(),
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Printf("Checkpoint: %s\n", report.Path)
			fmt.Printf("%-20s %d\n", "dim:", report.Dim)
			fmt.Printf("%-20s %d\n", "hidden_dim:", report.HiddenDim)
			fmt.Printf("%-20s %d\n", "layers:", report.Layers)
			fmt.Printf("%-20s %d\n", "heads:", report.Heads)
			fmt.Printf("%-20s %d\n", "kv_heads:", report.KVHeads)
			fmt.Printf("%-20s %d\n", "vocab_size:", report.VocabSize)
			fmt.Printf("%-20s %d\n", "seq_len:", report.SeqLen)
			fmt.Printf("%-20s %v\n", "shared_classifier:", report.SharedClassifier)
			fmt.Printf("%-20s %d\n", "weight_elems:", report.WeightElems)
			fmt.Printf("%-20s %d\n", "tokenizer_vocab:", report.TokenizerVocab)
			fmt.Printf("%-20s %d\n", "max_token_len:", report.MaxTokenLen)
			return nil
		},
	}
}
