// Command datasync synchronizes tables between relational databases using
// persistent watermarks, with cascading parent/child pipelines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mkrishnan-dev/datasync/internal/cascade"
	"github.com/mkrishnan-dev/datasync/internal/config"
	"github.com/mkrishnan-dev/datasync/internal/csvload"
	"github.com/mkrishnan-dev/datasync/internal/driver"
	"github.com/mkrishnan-dev/datasync/internal/engine"
	"github.com/mkrishnan-dev/datasync/internal/fetch"
	"github.com/mkrishnan-dev/datasync/internal/logging"
	"github.com/mkrishnan-dev/datasync/internal/progress"
	"github.com/mkrishnan-dev/datasync/internal/seed"
	"github.com/mkrishnan-dev/datasync/internal/state"
	"github.com/mkrishnan-dev/datasync/internal/syncerr"
	"github.com/mkrishnan-dev/datasync/internal/util"
	"github.com/mkrishnan-dev/datasync/internal/version"
	"github.com/mkrishnan-dev/datasync/internal/watermark"

	_ "github.com/mkrishnan-dev/datasync/internal/driver/mssql"
	_ "github.com/mkrishnan-dev/datasync/internal/driver/mysql"
	_ "github.com/mkrishnan-dev/datasync/internal/driver/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    version.Name,
		Usage:   "watermark-based incremental table synchronization",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "log format (text, json)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "suppress progress output",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("log-level"))
			if err != nil {
				return fail(syncerr.Wrap(syncerr.ErrConfiguration, err))
			}
			logging.SetLevel(level)
			logging.SetFormat(c.String("log-format"))
			return nil
		},
		Commands: []*cli.Command{
			runCommand(),
			statusCommand(),
			historyCommand(),
			resetCommand(),
			fetchCountriesCommand(),
			loadCSVCommand(),
			seedCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(syncerr.ExitCode(err))
	}
}

// fail converts an error into a cli exit carrying the matching exit code.
func fail(err error) error {
	return cli.Exit(err.Error(), syncerr.ExitCode(err))
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "run a sync cycle for an entity, cascading into its children",
		ArgsUsage: "<entity>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "since",
				Usage: "override the stored watermark for this cycle",
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "force a full truncate-and-reload",
			},
			&cli.BoolFlag{
				Name:  "no-cascade",
				Usage: "run only the named entity, ignoring cascade rules",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fail(syncerr.Wrap(syncerr.ErrConfiguration,
					fmt.Errorf("run takes exactly one entity name")))
			}
			root := c.Args().First()

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fail(err)
			}

			ent, err := cfg.Entity(root)
			if err != nil {
				return fail(err)
			}

			opts := engine.Options{Full: c.Bool("full")}
			if s := c.String("since"); s != "" {
				v, err := watermark.Parse(ent.WatermarkType, s)
				if err != nil {
					return fail(syncerr.Wrap(syncerr.ErrConfiguration,
						fmt.Errorf("invalid --since value: %w", err)))
				}
				opts.Since = &v
			}

			st, err := state.Open(cfg.StateDB)
			if err != nil {
				return fail(err)
			}
			defer st.Close()

			eng, closeDBs, err := buildEngine(cfg, st)
			if err != nil {
				return fail(err)
			}
			defer closeDBs()

			entities, err := cfg.DriverEntities()
			if err != nil {
				return fail(err)
			}
			rules := cfg.CascadeRules()
			if c.Bool("no-cascade") {
				rules = nil
			}

			ctl, err := cascade.New(eng, entities, rules,
				cascade.WithRecorder(st),
				cascade.WithRetry(cfg.RetryPolicy()))
			if err != nil {
				return fail(err)
			}

			tracker := progress.New(c.Bool("quiet"))
			defer tracker.Finish()
			opts.Progress = tracker

			results, err := ctl.Run(c.Context, root, opts)
			for _, res := range results {
				mode := "incremental"
				if res.FullLoad {
					mode = "full"
				}
				logging.Info("Completed %s (%s): %d rows in %s",
					res.Entity, mode, res.Rows, res.Finished.Sub(res.Started).Round(time.Millisecond))
			}
			if err != nil {
				return fail(err)
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show entities and their stored watermarks",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fail(err)
			}

			st, err := state.Open(cfg.StateDB)
			if err != nil {
				return fail(err)
			}
			defer st.Close()

			infos, err := st.Watermarks()
			if err != nil {
				return fail(err)
			}
			stored := make(map[string]state.WatermarkInfo, len(infos))
			for _, info := range infos {
				stored[info.Entity] = info
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENTITY\tTYPE\tWATERMARK\tLAST SUCCESS")
			for _, ec := range cfg.Entities {
				info, ok := stored[ec.Name]
				wm, last := "-", "-"
				typ := ec.WatermarkType
				if typ == "" {
					typ = "full-load"
				}
				if ok {
					wm = info.Value.Raw
					last = info.LastSuccess.Local().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ec.Name, typ, wm, last)
			}
			return w.Flush()
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "show recent sync runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "entity",
				Usage: "only runs for this entity",
			},
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "maximum runs to show",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fail(err)
			}

			st, err := state.Open(cfg.StateDB)
			if err != nil {
				return fail(err)
			}
			defer st.Close()

			runs, err := st.Runs(c.String("entity"), c.Int("limit"))
			if err != nil {
				return fail(err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tENTITY\tROWS\tMODE\tSTATUS\tPARENT ROWS\tERROR")
			for _, r := range runs {
				mode := "incremental"
				if r.FullLoad {
					mode = "full"
				}
				parent := "-"
				if r.ParentRows != nil {
					parent = fmt.Sprintf("%d", *r.ParentRows)
				}
				errMsg := util.Truncate(r.Error, 60)
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format(time.RFC3339), r.Entity, r.Rows, mode, r.Status, parent, errMsg)
			}
			return w.Flush()
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:      "reset",
		Usage:     "reset an entity's watermark so its next cycle is a full load",
		ArgsUsage: "<entity>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fail(syncerr.Wrap(syncerr.ErrConfiguration,
					fmt.Errorf("reset takes exactly one entity name")))
			}
			name := c.Args().First()

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fail(err)
			}
			if _, err := cfg.Entity(name); err != nil {
				return fail(err)
			}

			st, err := state.Open(cfg.StateDB)
			if err != nil {
				return fail(err)
			}
			defer st.Close()

			if err := st.Reset(name); err != nil {
				return fail(err)
			}
			logging.Info("Watermark for %s reset", name)
			return nil
		},
	}
}

func fetchCountriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch-countries",
		Usage: "fetch configured countries from the REST Countries API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "output directory (default from config)",
			},
			&cli.StringFlag{
				Name:  "countries",
				Usage: "comma-separated country list overriding the config",
			},
			&cli.BoolFlag{
				Name:  "upload",
				Usage: "upload fetched files to the configured bucket",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fail(err)
			}

			outDir := cfg.Fetch.OutputDir
			if d := c.String("out"); d != "" {
				outDir = d
			}
			countries := cfg.Fetch.Countries
			if s := c.String("countries"); s != "" {
				countries = util.SplitCSV(s)
			}

			client := fetch.NewClient("")
			files, err := client.Countries(c.Context, countries, outDir)
			if err != nil {
				return fail(err)
			}
			logging.Info("Fetched %d of %d countries into %s", len(files), len(countries), outDir)

			if c.Bool("upload") {
				bucket := fetch.BucketConfig{
					Endpoint:  cfg.Fetch.Upload.Endpoint,
					AccessKey: cfg.Fetch.Upload.AccessKey,
					SecretKey: cfg.Fetch.Upload.SecretKey,
					Bucket:    cfg.Fetch.Upload.Bucket,
					UseSSL:    cfg.Fetch.Upload.UseSSL,
				}
				if err := fetch.Upload(c.Context, bucket, files); err != nil {
					return fail(err)
				}
			}
			return nil
		},
	}
}

func loadCSVCommand() *cli.Command {
	return &cli.Command{
		Name:  "load-csv",
		Usage: "load configured CSV files into destination tables",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "directory holding the CSV files (default from config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fail(err)
			}

			dir := cfg.CSV.Dir
			if d := c.String("dir"); d != "" {
				dir = d
			}

			writer, err := newWriter(cfg)
			if err != nil {
				return fail(err)
			}
			defer writer.Close()

			specs := make([]csvload.FileSpec, 0, len(cfg.CSV.Files))
			for _, f := range cfg.CSV.Files {
				specs = append(specs, csvload.FileSpec{Name: f.Name, Table: f.Table, Columns: f.Columns})
			}

			total, err := csvload.New(writer, c.Bool("quiet")).LoadDir(c.Context, dir, specs)
			if err != nil {
				return fail(err)
			}
			logging.Info("Loaded %d rows from %d files", total, len(specs))
			return nil
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "generate a SQL script with synthetic customer rows",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "rows",
				Value: seed.DefaultRows,
				Usage: "number of rows to generate",
			},
			&cli.StringFlag{
				Name:  "out",
				Value: "source_seed.sql",
				Usage: "output file",
			},
			&cli.StringFlag{
				Name:  "table",
				Value: "customers",
				Usage: "destination table name",
			},
		},
		Action: func(c *cli.Context) error {
			opts := seed.Options{Rows: c.Int("rows"), Table: c.String("table")}
			if err := seed.WriteFile(c.String("out"), opts); err != nil {
				return fail(err)
			}
			logging.Info("Wrote %d rows to %s", opts.Rows, c.String("out"))
			return nil
		},
	}
}

// buildEngine opens the source reader and target writer and wires them to
// the watermark store. The returned func closes both connections.
func buildEngine(cfg *config.Config, st *state.State) (*engine.Engine, func(), error) {
	reader, err := newReader(cfg)
	if err != nil {
		return nil, nil, err
	}
	writer, err := newWriter(cfg)
	if err != nil {
		reader.Close()
		return nil, nil, err
	}
	closeBoth := func() {
		reader.Close()
		writer.Close()
	}
	return engine.New(reader, writer, st), closeBoth, nil
}

func newReader(cfg *config.Config) (driver.Reader, error) {
	d, err := driver.Get(cfg.Source.Type)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.ErrConfiguration, err)
	}
	return d.NewReader(&cfg.Source, cfg.Sync.MaxConnections)
}

func newWriter(cfg *config.Config) (driver.Writer, error) {
	d, err := driver.Get(cfg.Target.Type)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.ErrConfiguration, err)
	}
	return d.NewWriter(&cfg.Target, cfg.Sync.MaxConnections,
		driver.WriterOptions{RowsPerBatch: cfg.Sync.RowsPerBatch})
}
