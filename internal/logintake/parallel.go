package logintake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/trc-go/trc/internal/trcio"
)

// ReadLogs reads and fully tokenizes each path concurrently — pure,
// read-only work with no tree mutation — and returns one token slice per
// path in the same order as paths. Callers feed the results into a single
// Ingestor strictly in order; tokenizing fans out, applying never does
// (SPEC_FULL.md §4.E concurrency note).
func ReadLogs(ctx context.Context, paths []string) ([][]trcio.Token, error) {
	results := make([][]trcio.Token, len(paths))

	g, ctx := errgroup.WithContext(ctx)

	for i, path := range paths {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("logintake: reading %s: %w", path, err)
			}

			toks, err := drainTokens(ctx, trcio.NewTokenizer(data))
			if err != nil {
				return fmt.Errorf("logintake: tokenizing %s: %w", path, err)
			}

			results[i] = toks

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func drainTokens(ctx context.Context, tok *trcio.Tokenizer) ([]trcio.Token, error) {
	var toks []trcio.Token

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, err := tok.Next()
		if err != nil {
			if isEOF(err) {
				return toks, nil
			}

			return nil, err
		}

		toks = append(toks, t)
	}
}

func isEOF(err error) bool { return errors.Is(err, io.EOF) }
