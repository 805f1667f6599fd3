// Package decodecmder provides the decode command for turning a raw SSE
// stream into JSON records offline.
package decodecmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vivek100/spool/pkg/cliui"
	"github.com/vivek100/spool/pkg/logger"
	"github.com/vivek100/spool/pkg/record"
	"github.com/vivek100/spool/pkg/sse"
)

type decodeCommander struct {
	provider     string
	maxFrameSize int
	debug        bool
}

const decodeLongDesc string = `Decode an SSE stream into JSON records.

Reads server-sent events from a file, stdin, or a URL and writes one JSON
payload per line (NDJSON) to stdout. The [DONE] sentinel terminates decoding;
malformed frames are reported on stderr and skipped.

The source argument may be:
  a file path          spool decode capture.sse
  "-" or omitted       spool decode < capture.sse
  an http(s) URL       spool decode https://host/v1/stream

With --provider, a per-stream summary (model, content, token usage) is
printed to stderr after the stream ends.

Examples:
  spool decode capture.sse
  spool decode --provider openai capture.sse
  curl -sN https://host/v1/stream | spool decode -`

const decodeShortDesc string = "Decode an SSE stream into JSON records"

func NewDecodeCmd() *cobra.Command {
	cmder := &decodeCommander{}

	cmd := &cobra.Command{
		Use:   "decode [source]",
		Short: decodeShortDesc,
		Long:  decodeLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			source := "-"
			if len(args) == 1 {
				source = args[0]
			}

			return cmder.run(cmd.Context(), source)
		},
	}

	cmd.Flags().StringVarP(&cmder.provider, "provider", "p", "", "Summarize records for this provider (anthropic, openai, ollama)")
	cmd.Flags().IntVar(&cmder.maxFrameSize, "max-frame-size", 0, "Cap on a single frame in bytes (default 1 MiB)")

	return cmd
}

func (c *decodeCommander) run(ctx context.Context, source string) error {
	log := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	src, err := openSource(ctx, source)
	if err != nil {
		return err
	}

	opts := []sse.Option{sse.WithLogger(log)}
	if c.maxFrameSize > 0 {
		opts = append(opts, sse.WithMaxFrameSize(c.maxFrameSize))
	}
	decoder := sse.NewDecoder(opts...)

	var acc *record.Accumulator
	if c.provider != "" {
		acc = record.NewAccumulator(c.provider)
	}

	start := time.Now()
	count := 0

	err = decoder.Run(ctx, src, func(_ context.Context, rec sse.Record) error {
		if _, err := fmt.Fprintln(os.Stdout, rec.Raw); err != nil {
			return err
		}
		count++
		if acc != nil {
			acc.Add(rec.Value)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("decoding stream: %w", err)
	}

	if acc != nil {
		printSummary(acc, count, time.Since(start))
	}

	return nil
}

// openSource resolves the decode input: "-" means stdin, http(s) URLs are
// fetched, anything else is a file path. The decoder closes the source.
func openSource(ctx context.Context, source string) (io.ReadCloser, error) {
	switch {
	case source == "-":
		return os.Stdin, nil

	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching stream: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching stream: unexpected status %s", resp.Status)
		}
		return resp.Body, nil

	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("opening source: %w", err)
		}
		return f, nil
	}
}

// printSummary writes the accumulated stream summary to stderr so it never
// mixes with the NDJSON on stdout.
func printSummary(acc *record.Accumulator, count int, elapsed time.Duration) {
	usage := acc.Usage()

	fmt.Fprintf(os.Stderr, "\n  %s %s\n",
		cliui.KeyStyle.Render("records:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%d", count)),
	)
	if acc.Model() != "" {
		fmt.Fprintf(os.Stderr, "  %s %s\n",
			cliui.KeyStyle.Render("model:"),
			cliui.ValueStyle.Render(acc.Model()),
		)
	}
	fmt.Fprintf(os.Stderr, "  %s %s\n",
		cliui.KeyStyle.Render("tokens:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%d prompt, %d completion, %d total",
			usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)),
	)
	fmt.Fprintf(os.Stderr, "  %s %s\n\n",
		cliui.KeyStyle.Render("elapsed:"),
		cliui.DimStyle.Render(cliui.FormatDuration(elapsed)),
	)
}
