package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ocelbridge/config"
	"ocelbridge/internal/flatten"
	"ocelbridge/internal/logger"
	"ocelbridge/internal/metrics"
	"ocelbridge/internal/output/datasetxlsx"
	"ocelbridge/internal/output/progressjson"
	"ocelbridge/internal/output/progressredis"
	"ocelbridge/internal/output/sqlfiles"
	"ocelbridge/internal/pipeline"
	"ocelbridge/internal/platform"
	"ocelbridge/internal/provision"
	"ocelbridge/internal/sqlchunk"
)

func newProvisionCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		lead        string
		concurrency int
		reportPath  string
	)
	cmd := &cobra.Command{
		Use:          "provision [ocel.json]",
		Short:        "Create object types, event types, transformations and relationships",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(rootOpts)
			if err != nil {
				return err
			}
			defer logger.Close()
			if lead != "" {
				cfg.OcelBridge.Flatten.LeadObjectType = lead
			}
			if concurrency > 0 {
				cfg.OcelBridge.Provision.Concurrency = concurrency
			}
			return runProvision(cmd.Context(), cfg, inputPath(cfg, args), reportPath)
		},
	}
	cmd.Flags().StringVar(&lead, "lead", "", "lead object type for object-to-object relationships")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max in-flight chunk and relationship requests")
	cmd.Flags().StringVar(&reportPath, "report", "", "write per-unit results as JSONL")
	return cmd
}

func runProvision(parent context.Context, cfg *config.Config, path, reportPath string) error {
	c := cfg.OcelBridge
	if err := c.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if c.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, c.Metrics.Listen); err != nil {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	client, err := platform.New(platform.Config{
		BaseURL:     c.Platform.BaseURL,
		Environment: c.Platform.Environment,
		Timeout:     c.Platform.Timeout,
		Headers:     c.Platform.Headers,
		PageSize:    c.Platform.PageSize,
	}, platform.WithObserver(m))
	if err != nil {
		return fmt.Errorf("failed to create platform client: %w", err)
	}

	writer, err := newProgressWriter(c.Progress)
	if err != nil {
		return err
	}
	hub := pipeline.NewHub(writer, c.Progress.BatchSize, c.Progress.FlushInterval)
	hub.Start(context.Background())
	defer func() {
		if err := hub.Close(); err != nil {
			logger.Errorf("Error closing progress output: %v", err)
		}
	}()
	prov := provision.New(client, provision.Config{
		Concurrency:      c.Provision.Concurrency,
		Color:            c.Provision.Color,
		Category:         c.Provision.Category,
		DataConnectionID: c.Platform.DataConnectionID,
	}, provision.WithRecorder(m), provision.WithProgress(hub))

	logger.Infof("Run %s provisioning %s against %s (%s)", prov.RunID(), path, c.Platform.BaseURL, c.Platform.Environment)
	_, report, runErr := pipeline.Run(ctx, path, flatten.Options{LeadObjectType: c.Flatten.LeadObjectType}, prov, hub)
	if report != nil {
		printReport(os.Stdout, report)
		if reportPath != "" {
			if err := writeJSONLines(reportPath, reportRecords(report)); err != nil {
				logger.Errorf("Failed to write report: %v", err)
			}
		}
	}
	if runErr != nil {
		return runErr
	}
	if n := len(report.Failures()); n > 0 {
		return fmt.Errorf("%d provisioning units did not succeed", n)
	}
	return nil
}

func newProgressWriter(pc config.ProgressConfig) (pipeline.ProgressWriter, error) {
	switch pc.Mode {
	case "console":
		logger.Infof("Progress output mode: console")
		return nil, nil
	case "file":
		w, err := progressjson.NewWriter(pc.File.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create progress file writer: %w", err)
		}
		logger.Infof("Progress output mode: file (%s)", pc.File.Path)
		return w, nil
	case "redis":
		w, err := progressredis.NewWriter(progressredis.Config{
			Addr:     pc.Redis.Addr,
			Password: pc.Redis.Password,
			DB:       pc.Redis.DB,
			Key:      pc.Redis.Key,
			MaxLen:   pc.Redis.MaxLen,
			TTL:      pc.Redis.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create progress redis writer: %w", err)
		}
		logger.Infof("Progress output mode: redis (%s %s)", pc.Redis.Addr, pc.Redis.Key)
		return w, nil
	default:
		return nil, fmt.Errorf("unknown progress mode: %s", pc.Mode)
	}
}

type unitRecord struct {
	Phase   string            `json:"phase"`
	Unit    string            `json:"unit"`
	Outcome provision.Outcome `json:"outcome"`
	Error   string            `json:"error,omitempty"`
}

func reportRecords(r *provision.Report) []unitRecord {
	out := make([]unitRecord, 0, len(r.Results))
	for _, res := range r.Results {
		rec := unitRecord{Phase: res.Phase, Unit: res.Unit, Outcome: res.Outcome}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}

var reportOutcomes = []provision.Outcome{
	provision.OutcomeOK,
	provision.OutcomeExisting,
	provision.OutcomeSkipped,
	provision.OutcomeAbandoned,
	provision.OutcomeInvalid,
	provision.OutcomeFailed,
}

func printReport(f *os.File, r *provision.Report) {
	tw := tabwriter.NewWriter(f, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "phase")
	for _, o := range reportOutcomes {
		fmt.Fprintf(tw, "\t%s", o)
	}
	fmt.Fprintln(tw)
	for _, phase := range []string{provision.PhaseObjectTypes, provision.PhaseEventTypes, provision.PhaseTransformations, provision.PhaseRelationships} {
		fmt.Fprintf(tw, "%s", phase)
		for _, o := range reportOutcomes {
			fmt.Fprintf(tw, "\t%d", r.Count(phase, o))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
	fmt.Fprintf(f, "run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
}

func newFlattenCommand(rootOpts *rootOptions) *cobra.Command {
	var (
		lead       string
		xlsxPath   string
		sqlDir     string
		candidates string
	)
	cmd := &cobra.Command{
		Use:          "flatten [ocel.json]",
		Short:        "Flatten a log into tables and export them without provisioning",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(rootOpts)
			if err != nil {
				return err
			}
			defer logger.Close()
			if lead == "" {
				lead = cfg.OcelBridge.Flatten.LeadObjectType
			}

			hub := pipeline.NewHub(nil, 0, 0)
			defer hub.Close()
			prep, err := pipeline.Prepare(inputPath(cfg, args), flatten.Options{LeadObjectType: lead}, hub, "")
			if err != nil {
				return err
			}

			datasets := prep.Flat.Datasets()
			if xlsxPath != "" {
				if err := datasetxlsx.Write(xlsxPath, datasets, prep.Flat.Candidates); err != nil {
					return err
				}
				fmt.Printf("wrote %d datasets to %s\n", len(datasets), xlsxPath)
			}
			if sqlDir != "" {
				files, err := sqlfiles.Write(sqlDir, datasets)
				if err != nil {
					return err
				}
				fmt.Printf("wrote %d chunk files to %s\n", len(files), sqlDir)
			}
			if candidates != "" {
				if err := writeJSONLines(candidates, prep.Flat.Candidates); err != nil {
					return err
				}
				fmt.Printf("wrote %d relationship candidates to %s\n", len(prep.Flat.Candidates), candidates)
			}
			if xlsxPath == "" && sqlDir == "" && candidates == "" {
				printStats(os.Stdout, prep)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&lead, "lead", "", "lead object type for object-to-object relationships")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write every dataset as a sheet of this workbook")
	cmd.Flags().StringVar(&sqlDir, "sql-dir", "", "write encoded SQL chunks into this directory")
	cmd.Flags().StringVar(&candidates, "candidates", "", "write relationship candidates as JSONL")
	return cmd
}

func newStatsCommand(rootOpts *rootOptions) *cobra.Command {
	var lead string
	cmd := &cobra.Command{
		Use:          "stats [ocel.json]",
		Short:        "Print per-dataset row, column and chunk counts",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(rootOpts)
			if err != nil {
				return err
			}
			defer logger.Close()
			if lead == "" {
				lead = cfg.OcelBridge.Flatten.LeadObjectType
			}
			hub := pipeline.NewHub(nil, 0, 0)
			defer hub.Close()
			prep, err := pipeline.Prepare(inputPath(cfg, args), flatten.Options{LeadObjectType: lead}, hub, "")
			if err != nil {
				return err
			}
			printStats(os.Stdout, prep)
			return nil
		},
	}
	cmd.Flags().StringVar(&lead, "lead", "", "lead object type for object-to-object relationships")
	return cmd
}

func printStats(f *os.File, prep *pipeline.Prepared) {
	tw := tabwriter.NewWriter(f, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "dataset\tkind\trows\tcolumns\trows/chunk\tchunks")
	for _, ds := range prep.Flat.Datasets() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
			ds.Name, ds.Kind, len(ds.Rows), len(ds.Columns),
			sqlchunk.RowsPerChunk(len(ds.Columns)), len(sqlchunk.Encode(ds)))
	}
	tw.Flush()

	tw = tabwriter.NewWriter(f, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nsource\ttarget\tscope\tkind\tmax\tedges")
	for _, c := range prep.Flat.Candidates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", c.SourceType, c.TargetType, c.Scope, c.Kind, c.MaxTargets, c.Edges)
	}
	tw.Flush()
	fmt.Fprintf(f, "\nevents=%d objects=%d relations=%d warnings=%d\n",
		len(prep.Log.Events), len(prep.Log.Objects), len(prep.Log.Relations), len(prep.Warnings()))
}

func writeJSONLines[T any](path string, rows []T) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, item := range rows {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
