package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pensionhub/internal/api"
	"pensionhub/internal/config"
	"pensionhub/internal/importer"
	"pensionhub/internal/model"
	"pensionhub/internal/server"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "pensionhub",
		Short:         "Pension disbursement spreadsheet ingestion and summaries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config.toml path (default: next to the executable)")
	root.AddCommand(serveCmd(), importCmd(), recomputeCmd(), verifyCmd(), profilesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serveCmd() *cobra.Command {
	var (
		port    int
		devMode bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled summary check",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			// 命令行端口只在配置未显式指定时生效
			if port > 0 && !a.info.PortSpecified {
				a.cfg.Server.Port = port
			}
			if devMode {
				a.cfg.Server.DevMode = true
			}

			sched := importer.NewScheduler(a.aggregator, a.logger, time.Local)
			if err := sched.Start(a.cfg.Aggregator.RecomputeSchedule); err != nil {
				return err
			}
			defer sched.Stop()

			dataDir, err := config.EnsureDataDir(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
			h := api.NewHandler(api.Deps{
				Store:       a.store,
				Coordinator: a.coordinator,
				Detector:    a.detector,
				Aggregator:  a.aggregator,
				Logger:      a.logger,
				MaxUploadMB: a.cfg.Ingest.MaxUploadMB,
				ExportDir:   filepath.Join(dataDir, "exports"),
			})
			return server.NewServer(a.cfg, h, a.logger).Run(cmd.Context())
		}),
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (only used when config does not set one)")
	cmd.Flags().BoolVar(&devMode, "dev", false, "development mode")
	return cmd
}

func importCmd() *cobra.Command {
	var opts importer.ImportOptions
	var mappingFile string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a spreadsheet (xlsx, xls or csv)",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			opts.FilePath = args[0]
			if mappingFile != "" {
				m, err := loadMapping(mappingFile)
				if err != nil {
					return err
				}
				opts.Mapping = m
			}

			res, err := a.coordinator.Import(cmd.Context(), opts)
			if res != nil {
				if perr := printJSON(cmd, res); perr != nil {
					return perr
				}
			}
			return err
		}),
	}
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "force a source format instead of detecting it")
	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "import only this sheet")
	cmd.Flags().StringVar(&mappingFile, "mapping", "", "manual column mapping file (yaml or json)")
	return cmd
}

// loadMapping 读取手工映射文件，.json 按 JSON 解析，其余按 YAML
func loadMapping(path string) (*model.ManualMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	var m model.ManualMapping
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}
	if len(m.Pairs) == 0 {
		return nil, errors.New("mapping file has no pairs")
	}
	return &m, nil
}

func parseDimensions(raw []string) ([]model.Dimension, error) {
	dims := make([]model.Dimension, 0, len(raw))
	for _, r := range raw {
		d, err := model.ParseDimension(r)
		if err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, nil
}

func recomputeCmd() *cobra.Command {
	var dimensions []string
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild summary rows from the pensioner table",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			dims, err := parseDimensions(dimensions)
			if err != nil {
				return err
			}
			res, err := a.aggregator.Recompute(cmd.Context(), dims...)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		}),
	}
	cmd.Flags().StringSliceVar(&dimensions, "dimension", nil, "dimensions to rebuild (default: all)")
	return cmd
}

func verifyCmd() *cobra.Command {
	var dimensions []string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare stored summaries with the pensioner table",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			dims, err := parseDimensions(dimensions)
			if err != nil {
				return err
			}
			drifts, err := a.aggregator.Verify(cmd.Context(), dims...)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, drifts); err != nil {
				return err
			}
			if len(drifts) > 0 {
				return fmt.Errorf("%d summary rows drifted; run recompute", len(drifts))
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&dimensions, "dimension", nil, "dimensions to check (default: all)")
	return cmd
}

func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List known source formats in detection order",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			return printJSON(cmd, a.detector.Profiles())
		}),
	}
}
