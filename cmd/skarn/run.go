package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/skarn-ml/skarn/internal/flightexport"
)

func runCmd() *cli.Command {
	var (
		prompt     string
		tokensCSV  string
		flightAddr string
		maxFloats  int
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Embed a prompt through the loaded checkpoint",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "text to tokenize and embed",
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "tokens",
				Usage:       "comma separated token ids, bypasses the tokenizer",
				Destination: &tokensCSV,
			},
			&cli.StringFlag{
				Name:        "flight-addr",
				Usage:       "Arrow Flight endpoint to export embeddings to",
				Destination: &flightAddr,
			},
			&cli.IntFlag{
				Name:        "max-floats",
				Usage:       "floats printed per embedding row (0 = all)",
				Value:       8,
				Destination: &maxFloats,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if prompt == "" && tokensCSV == "" {
				return cli.Exit("error: either --prompt or --tokens is required", 1)
			}
			if prompt != "" && tokensCSV != "" {
				return cli.Exit("error: --prompt and --tokens are mutually exclusive", 1)
			}

			opts, err := loadOptions()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if flightAddr != "" {
				opts.FlightAddr = flightAddr
			}

			rt, err := initRuntime(opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = rt.Close() }()

			var tokens []int32
			if prompt != "" {
				tokens, err = rt.Encode(prompt)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: encode prompt: %v", err), 1)
				}
			} else {
				tokens, err = parseTokenList(tokensCSV)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			}
			if len(tokens) == 0 {
				return cli.Exit("error: input produced no tokens", 1)
			}

			if err := rt.Forward(tokens, 0); err != nil {
				return cli.Exit(fmt.Sprintf("error: forward: %v", err), 1)
			}
			rows, err := rt.EmbeddingRows(len(tokens))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read embeddings: %v", err), 1)
			}

			for i, row := range rows {
				fmt.Printf("token %6d  %s\n", tokens[i], formatRow(row, maxFloats))
			}

			if opts.FlightAddr != "" {
				if err := exportRows(ctx, opts.FlightAddr, rt.Config().Dim, rows); err != nil {
					return cli.Exit(fmt.Sprintf("error: flight export: %v", err), 1)
				}
			}
			return nil
		},
	}
}

func parseTokenList(csv string) ([]int32, error) {
	parts := strings.Split(csv, ",")
	tokens := make([]int32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q", p)
		}
		tokens = append(tokens, int32(id))
	}
	return tokens, nil
}

func formatRow(row []float32, limit int) string {
	n := len(row)
	truncated := false
	if limit > 0 && n > limit {
		n = limit
		truncated = true
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = strconv.FormatFloat(float64(row[i]), 'g', 6, 32)
	}
	out := "[" + strings.Join(parts, " ")
	if truncated {
		out += " ..."
	}
	return out + "]"
}

func exportRows(ctx context.Context, addr string, dim int, rows [][]float32) error {
	client, err := flightexport.NewClient(addr, dim)
	if err != nil {
		return err
	}
	if err := client.Connect(); err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	return client.Export(ctx, rows)
}
