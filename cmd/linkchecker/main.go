package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/olgkv/bookmarkchecker/internal/app"
	"github.com/olgkv/bookmarkchecker/internal/bookmarkfile"
	"github.com/olgkv/bookmarkchecker/internal/config"
	"github.com/olgkv/bookmarkchecker/internal/domain"
	"github.com/olgkv/bookmarkchecker/internal/export"
	"github.com/olgkv/bookmarkchecker/internal/locale"
	"github.com/olgkv/bookmarkchecker/internal/probe"
	"github.com/olgkv/bookmarkchecker/internal/service"
)

var version = "dev"

const formatTable = "table"

var ErrLinksFailed = errors.New("some bookmarks failed validation")

type checkOptions struct {
	format      string
	filter      string
	output      string
	timeout     time.Duration
	concurrency int
	lang        string
	failOnError bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, ErrLinksFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "linkchecker",
		Short:         "check the links of an exported bookmark file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCheckCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "linkchecker", version)
		},
	}
}

func newCheckCmd() *cobra.Command {
	opts := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "validate every http(s) link of a bookmark HTML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("timeout") {
				opts.timeout = cfg.ProbeTimeout
			}
			if !cmd.Flags().Changed("concurrency") {
				opts.concurrency = cfg.MaxConcurrency
			}

			logger, err := app.NewLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), logger, cfg.UserAgent, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.format, "format", "f", formatTable, "output format: table, xlsx, csv, txt, json, html, pdf")
	f.StringVar(&opts.filter, "filter", string(domain.FilterAll), "which results to output: all, ok, error")
	f.StringVarP(&opts.output, "output", "o", "", "export file path, - for stdout (default: bookmarks.<format>)")
	f.DurationVarP(&opts.timeout, "timeout", "t", probe.DefaultTimeout, "per-link request timeout")
	f.IntVarP(&opts.concurrency, "concurrency", "c", 0, "max simultaneous requests, 0 for unbounded")
	f.StringVar(&opts.lang, "lang", string(locale.English), "table and export column language: en, zh")
	f.BoolVar(&opts.failOnError, "fail-on-error", false, "exit with status 1 when any link is broken")
	return cmd
}

func runCheck(ctx context.Context, out io.Writer, logger *slog.Logger, userAgent, path string, opts *checkOptions) error {
	filter, err := export.ParseFilter(opts.filter)
	if err != nil {
		return err
	}
	var format export.Format
	if opts.format != formatTable {
		if format, err = export.ParseFormat(opts.format); err != nil {
			return err
		}
	}

	bookmarks, err := readBookmarks(path)
	if err != nil {
		return err
	}

	validator := service.NewValidator(
		probe.New(nil, userAgent, opts.timeout),
		service.WithMaxConcurrency(opts.concurrency),
		service.WithLogger(logger),
	)
	results := validator.Validate(ctx, bookmarks)
	summary := domain.Summarize(results)

	lang := locale.Negotiate(opts.lang, "")
	if format == "" {
		printTable(out, filter.Apply(results), lang.Labels())
		fmt.Fprintf(out, "\ntotal: %d, ok: %d, error: %d\n", summary.Total, summary.OK, summary.Error)
	} else if err := writeExport(ctx, out, results, format, filter, lang, opts.output); err != nil {
		return err
	}

	if opts.failOnError && summary.Error > 0 {
		return ErrLinksFailed
	}
	return nil
}

func readBookmarks(path string) ([]domain.Bookmark, error) {
	if !bookmarkfile.IsHTML(path, "") {
		return nil, fmt.Errorf("%s: %w", path, bookmarkfile.ErrNotHTML)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bookmarks, err := bookmarkfile.Parse(f, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bookmarks, nil
}

func printTable(w io.Writer, results []domain.Result, lb locale.Labels) {
	tbl := table.New(lb.Index, lb.Status, lb.Title, lb.URL, lb.ErrorMessage).WithWriter(w)
	for i, r := range results {
		tbl.AddRow(i+1, r.Status, r.Title, r.URL, r.ErrorMessage)
	}
	tbl.Print()
}

func writeExport(ctx context.Context, stdout io.Writer, results []domain.Result, format export.Format, filter domain.Filter, lang locale.Lang, output string) error {
	if output == "-" {
		return export.Encode(ctx, stdout, results, format, filter, lang)
	}
	if output == "" {
		output = format.FileName()
	}

	f, err := os.Create(filepath.Clean(output))
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	if err := export.Encode(ctx, f, results, format, filter, lang); err != nil {
		_ = f.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", output)
	return nil
}
