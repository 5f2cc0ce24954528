package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/updateguard/updateguard/internal/backup"
	"github.com/updateguard/updateguard/internal/config"
	"github.com/updateguard/updateguard/internal/diag"
	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/fallback"
	"github.com/updateguard/updateguard/internal/fsys"
	"github.com/updateguard/updateguard/internal/history"
	"github.com/updateguard/updateguard/internal/integrity"
	"github.com/updateguard/updateguard/internal/lock"
	"github.com/updateguard/updateguard/internal/logger"
	"github.com/updateguard/updateguard/internal/manual"
	"github.com/updateguard/updateguard/internal/orchestrator"
	"github.com/updateguard/updateguard/internal/paths"
	"github.com/updateguard/updateguard/internal/preserve"
	"github.com/updateguard/updateguard/internal/progress"
	"github.com/updateguard/updateguard/internal/scheduler"
)

var (
	configPath string
	applyCmd   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "updateguard",
		Short:        "Detect, diagnose, and recover from failed application updates",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	updateCmd := &cobra.Command{
		Use:   "update <target-version>",
		Short: "Run a guarded update to the target version",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}
	updateCmd.Flags().StringVar(&applyCmd, "apply-command", "", "host command that applies the new version")

	root.AddCommand(
		updateCmd,
		&cobra.Command{
			Use:   "backup",
			Short: "Create a backup of the installation tree",
			Args:  cobra.NoArgs,
			RunE:  runBackup,
		},
		&cobra.Command{
			Use:   "restore <backup-id>",
			Short: "Restore the installation tree from a backup",
			Args:  cobra.ExactArgs(1),
			RunE:  runRestore,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List available backups",
			Args:  cobra.NoArgs,
			RunE:  runList,
		},
		&cobra.Command{
			Use:   "history",
			Short: "Show past update sessions",
			Args:  cobra.NoArgs,
			RunE:  runHistory,
		},
		&cobra.Command{
			Use:   "auto-backup",
			Short: "Run periodic automatic backups until interrupted",
			Args:  cobra.NoArgs,
			RunE:  runAutoBackup,
		},
	)

	return root
}

// env bundles the constructed components for one command invocation.
type env struct {
	cfg       *config.Config
	backups   *backup.Store
	sessions  *history.Manager
	orch      func(updater orchestrator.Updater) (*orchestrator.Orchestrator, error)
	sessLock  *lock.SessionLock
	shutdowns []func()
}

func buildEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg := logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: logger.ParseFormat(cfg.Log.Format),
	}
	if cfg.Log.File != "" {
		logCfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			MaxBackups: cfg.Log.MaxBackups,
		}
	}
	if err := logger.Init(logCfg); err != nil {
		return nil, err
	}

	fs := fsys.Default()

	resolver := paths.NewWithLayout(fs, domain.InstallationLayout{ExecutableDir: cfg.InstallDir})
	validator := integrity.NewValidator(fs, resolver, cfg.ExpectedChecksums)

	backups, err := backup.NewStore(fs, cfg.BackupDir, backup.Options{
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxBackupAgeDays,
	})
	if err != nil {
		return nil, err
	}
	backups.SetNotifier(printNotification)
	backups.SetProgressReporter(progress.NullReporter{})

	reporter, err := diag.NewReporter(fs, cfg.ReportDir)
	if err != nil {
		return nil, err
	}

	sessions, err := history.NewManager(cfg.ReportDir)
	if err != nil {
		return nil, err
	}

	sessLock, err := lock.New(cfg.InstallDir)
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:      cfg,
		backups:  backups,
		sessions: sessions,
		sessLock: sessLock,
		shutdowns: []func(){
			func() { sessions.Close() },
			func() { logger.Shutdown() },
		},
	}

	e.orch = func(updater orchestrator.Updater) (*orchestrator.Orchestrator, error) {
		return orchestrator.New(cfg, orchestrator.Deps{
			Fs:        fs,
			Resolver:  resolver,
			Validator: validator,
			Backups:   backups,
			Fallbacks: fallback.NewResolver(fs, resolver, validator),
			Preserver: preserve.NewPreserver(fs),
			Plans:     manual.NewBuilder("updateguard"),
			Reporter:  reporter,
			Sessions:  sessions,
			Lock:      sessLock,
			Updater:   updater,
			Notify:    printNotification,
		})
	}

	return e, nil
}

func (e *env) close() {
	for _, fn := range e.shutdowns {
		fn()
	}
}

func printNotification(message string, severity domain.Severity, details map[string]string) {
	fmt.Printf("[%s] %s\n", severity, message)
}

// execUpdater shells out to a host-supplied apply command.
type execUpdater struct {
	command string
}

func (u *execUpdater) Apply(ctx context.Context, targetVersion string) error {
	if u.command == "" {
		return fmt.Errorf("no apply command configured")
	}
	cmd := exec.CommandContext(ctx, u.command, targetVersion)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func runUpdate(cmd *cobra.Command, args []string) error {
	e, err := buildEnv()
	if err != nil {
		return err
	}
	defer e.close()

	orch, err := e.orch(&execUpdater{command: applyCmd})
	if err != nil {
		return err
	}

	session, err := orch.PerformUpdate(cmd.Context(), args[0])
	fmt.Printf("session %s finished: %s\n", session.SessionID, session.Status)

	if session.Plan != nil {
		printPlan(session.Plan)
	}
	return err
}

func runBackup(cmd *cobra.Command, args []string) error {
	e, err := buildEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.sessLock.Acquire("backup", ""); err != nil {
		return err
	}
	defer e.sessLock.Release()

	record, err := e.backups.Create(cmd.Context(), "manual", e.cfg.InstallDir)
	if err != nil {
		return err
	}
	fmt.Printf("backup created: %s (%s)\n", record.BackupID, progress.FormatBytes(record.SizeBytes))
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	e, err := buildEnv()
	if err != nil {
		return err
	}
	defer e.close()

	record, err := e.backups.Find(args[0])
	if err != nil {
		return err
	}

	if err := e.sessLock.Acquire("restore", ""); err != nil {
		return err
	}
	defer e.sessLock.Release()

	if err := e.backups.Restore(cmd.Context(), record.ArchivePath, e.cfg.InstallDir); err != nil {
		return err
	}
	fmt.Printf("restored %s into %s\n", record.BackupID, e.cfg.InstallDir)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := buildEnv()
	if err != nil {
		return err
	}
	defer e.close()

	records, err := e.backups.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BACKUP ID\tVERSION\tCREATED\tSIZE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.BackupID, r.SourceVersion,
			r.CreatedAt.Format(time.RFC3339),
			progress.FormatBytes(r.SizeBytes),
		)
	}
	return w.Flush()
}

// storeRunner adapts the backup store to the scheduler's runner:
// each cycle archives the install tree and applies retention.
type storeRunner struct {
	store      *backup.Store
	installDir string
}

func (r *storeRunner) RunBackup(ctx context.Context) error {
	if _, err := r.store.Create(ctx, "auto", r.installDir); err != nil {
		return err
	}
	return r.store.Cleanup()
}

func runAutoBackup(cmd *cobra.Command, args []string) error {
	e, err := buildEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if e.cfg.AutoBackupIntervalMinutes <= 0 {
		return fmt.Errorf("auto_backup_interval_minutes must be positive to run automatic backups")
	}

	// The gate gets its own lock instance: sharing the command's
	// instance would re-enter instead of skipping a held session.
	gate, err := lock.New(e.cfg.InstallDir)
	if err != nil {
		return err
	}

	sched, err := scheduler.NewIntervalScheduler(
		scheduler.Config{Interval: time.Duration(e.cfg.AutoBackupIntervalMinutes) * time.Minute},
		&storeRunner{store: e.backups, installDir: e.cfg.InstallDir},
		gate,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("automatic backups every %d minutes, interrupt to stop\n", e.cfg.AutoBackupIntervalMinutes)

	<-ctx.Done()
	_ = sched.Stop() // the loop may already have exited with the context
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := buildEnv()
	if err != nil {
		return err
	}
	defer e.close()

	records, err := e.sessions.GetHistory(20)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tVERSION\tSTATUS\tSTARTED\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.SessionID, r.TargetVersion, r.Status,
			r.StartTime.Format(time.RFC3339), r.Error,
		)
	}
	return w.Flush()
}

func printPlan(plan *domain.ManualPlan) {
	fmt.Printf("\nManual recovery plan %s (difficulty: %s, ~%d min)\n",
		plan.PlanID, plan.Difficulty, plan.EstimatedMinutes)
	for _, warning := range plan.Warnings {
		fmt.Printf("  ! %s\n", warning)
	}
	for _, step := range plan.Steps {
		fmt.Printf("  %d. %s — %s\n", step.Index, step.Title, step.Description)
		for _, inst := range step.Instructions {
			fmt.Printf("     - %s\n", inst)
		}
		if step.Verification != "" {
			fmt.Printf("     verify: %s\n", step.Verification)
		}
	}
}
