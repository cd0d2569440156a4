package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dmscripts/internal/app"
	"dmscripts/internal/badwords"
	"dmscripts/internal/config"
	"dmscripts/internal/db"
	"dmscripts/internal/domain"
	"dmscripts/internal/events"
	"dmscripts/internal/fixtures"
	"dmscripts/internal/migrate"
	"dmscripts/internal/orgsize"
	"dmscripts/internal/repo"
	"dmscripts/internal/results"
	"dmscripts/internal/schema"
	"dmscripts/internal/server"
	"dmscripts/internal/userlist"
)

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "dmscripts",
	Short: "Digital Marketplace framework administration jobs",
	Long: `dmscripts runs batch jobs against the Digital Marketplace Data API.
- framework-results: decide pass/fail/discretionary results from declarations and draft services, or insert results from a CSV.
- services, users, suppliers, fixtures: reports, exports and one-off data fixes.
- runs: every job that writes to the API is recorded in the workspace ledger (.dmscripts/dmscripts.db).
- serve: read-only review API over the ledger, including the discretionary queue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if path := viper.GetString("config"); path != "" {
			cfg, err = config.FromFile(path)
		} else {
			cfg, err = config.Load(viper.GetString("workspace"))
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, err = app.NewLogger(cfg.Logging.Level, viper.GetBool("verbose"))
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DMSCRIPTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory (ledger and dmscripts.yml)")
	pf.String("config", "", "config file (default <workspace>/dmscripts.yml)")
	pf.StringP("stage", "s", "", "Data API stage from config")
	pf.String("api-url", "", "Data API url (overrides stage)")
	pf.String("api-token", "", "Data API token (overrides the stage token_env)")
	pf.Bool("json", false, "output JSON")
	pf.BoolP("verbose", "v", false, "debug logging")
	pf.Bool("no-ledger", false, "do not record the run in the ledger")
	for _, name := range []string{"workspace", "config", "stage", "api-url", "api-token", "json", "verbose", "no-ledger"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(frameworkResultsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(servicesCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(suppliersCmd())
	rootCmd.AddCommand(fixturesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func frameworkResultsCmd() *cobra.Command {
	fr := &cobra.Command{Use: "framework-results", Short: "Decide or insert supplier framework results"}
	fr.AddCommand(markCmd())
	fr.AddCommand(insertCmd())
	return fr
}

func markCmd() *cobra.Command {
	var (
		rc                    results.Config
		definitePath          string
		discretionaryPath     string
		supplierIDsFile       string
		excludeIDsFile        string
		validationLogLevel    string
		supplierIDs, excluded []int64
	)
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark suppliers as passed, failed or discretionary",
		Long: `Evaluates each interested supplier (or the given suppliers): incomplete declarations
and suppliers without submitted services fail, declarations valid against the definite
schema pass, the rest are discretionary unless they fail the discretionary schema.
Discretionary suppliers are never written; review them with 'dmscripts serve'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := resolveAPI()
			if err != nil {
				return err
			}
			if rc.DefinitePassSchema, err = schema.Load(definitePath, ""); err != nil {
				return err
			}
			if discretionaryPath != "" {
				if rc.DiscretionaryPassSchema, err = schema.Load(discretionaryPath, ""); err != nil {
					return err
				}
			}
			if validationLogLevel == "" {
				validationLogLevel = cfg.Logging.ValidationLevel
			}
			if rc.ValidationLogLevel, err = app.ParseLevel(validationLogLevel); err != nil {
				return err
			}
			if rc.SupplierIDs, err = mergeIDs(supplierIDs, supplierIDsFile); err != nil {
				return err
			}
			if rc.ExcludedSupplierIDs, err = mergeIDs(excluded, excludeIDsFile); err != nil {
				return err
			}
			log := logger.With(zap.String("framework", rc.FrameworkSlug), zap.String("stage", api.Stage))
			if rc.DryRun {
				log.Info("dry run: no results will be written")
			}
			var sum results.Summary
			err = withLedger(cmd.Context(), domain.JobMarkResults, rc.FrameworkSlug, rc.UpdatedBy, rc.DryRun, func(ctx context.Context, rec *app.RunRecorder) (map[string]int, error) {
				opts := []results.Option{results.WithLogger(log)}
				if rec != nil {
					opts = append(opts, results.WithRecorder(rec))
				}
				m, err := results.New(api.Client(), rc, opts...)
				if err != nil {
					return nil, err
				}
				sum, err = m.Run(ctx)
				return sum.Map(), err
			})
			if err != nil {
				return err
			}
			return printSummary(sum.Map())
		},
	}
	f := cmd.Flags()
	f.StringVar(&rc.FrameworkSlug, "framework", "", "framework slug")
	f.StringVar(&rc.UpdatedBy, "updated-by", "", "name recorded against result changes")
	f.StringVar(&definitePath, "definite-schema", "", "JSON Schema a declaration must satisfy to pass outright")
	f.StringVar(&discretionaryPath, "discretionary-schema", "", "JSON Schema a declaration must satisfy to stay discretionary")
	f.BoolVar(&rc.ReassessPassedSuppliers, "reassess-passed", false, "re-evaluate suppliers already passed")
	f.BoolVar(&rc.ReassessFailedSuppliers, "reassess-failed", false, "re-evaluate suppliers already failed")
	f.BoolVar(&rc.DryRun, "dry-run", true, "evaluate without writing results (--dry-run=false to write)")
	f.Int64SliceVar(&supplierIDs, "supplier-id", nil, "supplier to evaluate (repeatable)")
	f.StringVar(&supplierIDsFile, "supplier-ids-file", "", "file of supplier ids to evaluate, one per line")
	f.Int64SliceVar(&excluded, "exclude-supplier-id", nil, "supplier to leave out (repeatable)")
	f.StringVar(&excludeIDsFile, "exclude-ids-file", "", "file of supplier ids to leave out, one per line")
	f.StringVar(&validationLogLevel, "validation-log-level", "", "level for schema failure messages (default logging.validation_level)")
	_ = cmd.MarkFlagRequired("framework")
	_ = cmd.MarkFlagRequired("updated-by")
	_ = cmd.MarkFlagRequired("definite-schema")
	return cmd
}

func insertCmd() *cobra.Command {
	var slug, file, updatedBy string
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Set results from a CSV of supplier_id,pass|fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := resolveAPI()
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), domain.JobInsertResults, slug, updatedBy, false, func(ctx context.Context, rec *app.RunRecorder) (map[string]int, error) {
				setter := &recordingSetter{client: api.Client(), rec: rec, logger: logger}
				err := results.InsertResults(ctx, setter, os.Stdout, slug, file, updatedBy)
				return map[string]int{"ok": setter.ok, "errors": setter.failed}, err
			})
		},
	}
	cmd.Flags().StringVar(&slug, "framework", "", "framework slug")
	cmd.Flags().StringVar(&file, "file", "", "CSV file of results")
	cmd.Flags().StringVar(&updatedBy, "updated-by", "", "name recorded against result changes")
	_ = cmd.MarkFlagRequired("framework")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("updated-by")
	return cmd
}

// recordingSetter counts result writes and appends a ledger event for each success.
type recordingSetter struct {
	client results.ResultSetter
	rec    *app.RunRecorder
	logger *zap.Logger
	ok     int
	failed int
}

func (s *recordingSetter) SetFrameworkResult(ctx context.Context, supplierID int64, frameworkSlug string, onFramework bool, updatedBy string) error {
	if err := s.client.SetFrameworkResult(ctx, supplierID, frameworkSlug, onFramework, updatedBy); err != nil {
		s.failed++
		return err
	}
	s.ok++
	if s.rec != nil {
		payload := map[string]any{"framework_slug": frameworkSlug, "on_framework": onFramework}
		if err := s.rec.RecordWrite(ctx, events.TypeResultSet, "supplier", strconv.FormatInt(supplierID, 10), payload); err != nil {
			s.logger.Warn("failed to record result", zap.Int64("supplier_id", supplierID), zap.Error(err))
		}
	}
	return nil
}

func runsCmd() *cobra.Command {
	runs := &cobra.Command{Use: "runs", Short: "Inspect recorded job runs"}
	runs.AddCommand(runsListCmd())
	runs.AddCommand(runsShowCmd())
	return runs
}

func runsListCmd() *cobra.Command {
	var job string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRuns(ctx, job, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Job", "Framework", "Dry run", "Started", "Finished"})
				for _, run := range items {
					finished := ""
					if run.FinishedAt != nil {
						finished = *run.FinishedAt
					}
					tw.AppendRow(table.Row{run.ID, run.Job, run.FrameworkSlug, run.DryRun, run.StartedAt, finished})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "job filter")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs")
	return cmd
}

func runsShowCmd() *cobra.Command {
	var decision string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its supplier outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				run, err := r.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				outcomes, err := r.ListOutcomes(ctx, run.ID, decision)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"run": run, "outcomes": outcomes})
				}
				fmt.Printf("Run %s (%s %s) started %s by %s\n", run.ID, run.Job, run.FrameworkSlug, run.StartedAt, run.UpdatedBy)
				if err := printSummary(run.Summary); err != nil {
					return err
				}
				if len(outcomes) == 0 {
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Supplier", "Decision", "Reason", "Previous", "Written", "Submitted"})
				for _, o := range outcomes {
					tw.AppendRow(table.Row{o.Seq, o.SupplierID, o.Decision, o.Reason, o.Previous, o.Written, o.Submitted})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "decision filter (pass, fail, discretionary, skip)")
	return cmd
}

func servicesCmd() *cobra.Command {
	svc := &cobra.Command{Use: "services", Short: "Service reports"}
	svc.AddCommand(badWordsCmd())
	return svc
}

func badWordsCmd() *cobra.Command {
	var wordsFile, slug, outputDir string
	cmd := &cobra.Command{
		Use:   "bad-words",
		Short: "Report live services whose answers contain disallowed words",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := resolveAPI()
			if err != nil {
				return err
			}
			words, err := badwords.LoadWords(wordsFile)
			if err != nil {
				return err
			}
			s, err := badwords.New(api.Client(), words, cfg.BadWords.Keys, logger)
			if err != nil {
				return err
			}
			path, n, err := s.WriteReport(cmd.Context(), outputDir, slug)
			if err != nil {
				return err
			}
			logger.Info("bad words report written", zap.String("path", path), zap.Int("matches", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&wordsFile, "words", "", "file of words, one per line")
	cmd.Flags().StringVar(&slug, "framework", "", "framework slug")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "report directory")
	_ = cmd.MarkFlagRequired("words")
	_ = cmd.MarkFlagRequired("framework")
	return cmd
}

func usersCmd() *cobra.Command {
	u := &cobra.Command{Use: "users", Short: "User reports"}
	u.AddCommand(usersExportCmd())
	return u
}

func usersExportCmd() *cobra.Command {
	var opts userlist.Options
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export active supplier users as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := resolveAPI()
			if err != nil {
				return err
			}
			if opts.Workers == 0 {
				opts.Workers = cfg.UserExport.Workers
			}
			var out io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			n, err := userlist.New(api.Client(), logger).Export(cmd.Context(), out, opts)
			if err != nil {
				return err
			}
			logger.Info("exported supplier users", zap.Int("users", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.FrameworkSlug, "framework", "", "only users whose supplier registered interest in this framework")
	cmd.Flags().BoolVar(&opts.IncludeStatus, "include-status", false, "prefix each row with the supplier's application status")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent lookups (default user_export.workers)")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func suppliersCmd() *cobra.Command {
	s := &cobra.Command{Use: "suppliers", Short: "Supplier data fixes"}
	s.AddCommand(migrateOrgSizeCmd())
	return s
}

func migrateOrgSizeCmd() *cobra.Command {
	var dryRun bool
	var outputDir string
	cmd := &cobra.Command{
		Use:   "migrate-org-size",
		Short: "Copy organisation size from the latest returned declaration onto suppliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := resolveAPI()
			if err != nil {
				return err
			}
			u, err := user.Current()
			if err != nil {
				return err
			}
			opts := orgsize.Options{UpdatedBy: orgsize.UpdatedBy(u.Username), DryRun: dryRun}
			var rep orgsize.Report
			err = withLedger(cmd.Context(), domain.JobOrgSize, "", opts.UpdatedBy, dryRun, func(ctx context.Context, rec *app.RunRecorder) (map[string]int, error) {
				var wr orgsize.WriteRecorder
				if rec != nil {
					wr = rec
				}
				rep, err = orgsize.New(api.Client(), logger, wr).Run(ctx, opts)
				return rep.Summary(), err
			})
			if err != nil {
				return err
			}
			return rep.WriteFiles(outputDir)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "skip the update step")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "directory for the supplier id files")
	return cmd
}

func fixturesCmd() *cobra.Command {
	fx := &cobra.Command{Use: "fixtures", Short: "Test data for non-production stages"}
	fx.AddCommand(createUsersCmd())
	return fx
}

func createUsersCmd() *cobra.Command {
	var opts fixtures.Options
	cmd := &cobra.Command{
		Use:   "create-users",
		Short: "Ensure a test supplier and login exist per DUNS number",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := resolveAPI()
			if err != nil {
				return err
			}
			opts.Production = api.Production
			if opts.Production {
				return fixtures.ErrProduction
			}
			return withLedger(cmd.Context(), domain.JobFixtures, "", opts.UpdatedBy, false, func(ctx context.Context, rec *app.RunRecorder) (map[string]int, error) {
				var wr fixtures.WriteRecorder
				if rec != nil {
					wr = rec
				}
				accounts, err := fixtures.New(api.Client(), logger, wr).CreateUsers(ctx, os.Stdout, opts)
				return map[string]int{"accounts": len(accounts)}, err
			})
		},
	}
	cmd.Flags().Int64Var(&opts.FromDUNS, "from", 123456787, "first DUNS number")
	cmd.Flags().IntVar(&opts.Count, "count", 3, "number of suppliers")
	cmd.Flags().StringVar(&opts.Password, "password", fixtures.DefaultPassword, "password for created users")
	cmd.Flags().StringVar(&opts.UpdatedBy, "updated-by", "dmscripts fixtures", "name recorded against supplier updates")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cfg)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("config ok (stages: %s)\n", strings.Join(cfg.StageNames(), ", "))
			return nil
		},
	})
	return c
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the review API over the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("DMSCRIPTS_JWT_SECRET is required for bearer auth")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				handler, err := server.New(server.Config{
					Repo:     r,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret, Logger: logger},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				logger.Info(fmt.Sprintf("Serving review API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)", addr, basePath, basePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func resolveAPI() (app.API, error) {
	return app.ResolveAPI(cfg, viper.GetString("stage"), viper.GetString("api-url"), viper.GetString("api-token"))
}

// withLedger records a job run around fn. With --no-ledger fn gets a nil recorder.
func withLedger(ctx context.Context, job, slug, actor string, dryRun bool, fn func(context.Context, *app.RunRecorder) (map[string]int, error)) error {
	if viper.GetBool("no-ledger") {
		_, err := fn(ctx, nil)
		return err
	}
	l, err := app.OpenLedger(ctx, viper.GetString("workspace"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()
	rec, err := l.StartRun(ctx, job, slug, actor, dryRun)
	if err != nil {
		return err
	}
	logger.Debug("recording run", zap.String("run_id", rec.Run.ID), zap.String("job", job))
	summary, runErr := fn(ctx, rec)
	if runErr != nil {
		// Aborted runs stay unfinished and are never picked as the latest run.
		return runErr
	}
	return rec.Finish(ctx, summary)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// mergeIDs combines ids given as flags with ids read from path, one per line.
func mergeIDs(ids []int64, path string) ([]int64, error) {
	if path == "" {
		return ids, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := append([]int64(nil), ids...)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: invalid supplier id %q", path, line, text)
		}
		out = append(out, id)
	}
	return out, sc.Err()
}

func printSummary(summary map[string]int) error {
	if viper.GetBool("json") {
		return printJSON(summary)
	}
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Outcome", "Count"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k, summary[k]})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
