// Package orchestrator sequences validation, backup, data
// preservation, apply, re-validation, restoration, and cleanup into a
// single update operation, falling back to rollback and manual plans
// when automation fails.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/updateguard/updateguard/internal/backup"
	"github.com/updateguard/updateguard/internal/config"
	"github.com/updateguard/updateguard/internal/diag"
	"github.com/updateguard/updateguard/internal/domain"
	"github.com/updateguard/updateguard/internal/fallback"
	"github.com/updateguard/updateguard/internal/history"
	"github.com/updateguard/updateguard/internal/integrity"
	"github.com/updateguard/updateguard/internal/lock"
	"github.com/updateguard/updateguard/internal/logger"
	"github.com/updateguard/updateguard/internal/manual"
	"github.com/updateguard/updateguard/internal/paths"
	"github.com/updateguard/updateguard/internal/preserve"
)

// Updater applies the new application version. It is an opaque,
// host-provided step responsible for bit transfer and installation.
type Updater interface {
	Apply(ctx context.Context, targetVersion string) error
}

// Orchestrator drives one update session at a time against an
// installation directory. Construct it once with injected
// collaborators; there are no process-wide singletons.
type Orchestrator struct {
	cfg       *config.Config
	fs        afero.Fs
	resolver  *paths.Resolver
	validator *integrity.Validator
	backups   *backup.Store
	fallbacks *fallback.Resolver
	preserver *preserve.Preserver
	plans     *manual.Builder
	reporter  *diag.Reporter
	sessions  *history.Manager // optional
	lock      *lock.SessionLock
	updater   Updater
	notify    domain.Notifier
}

// Deps bundles the injected collaborators.
type Deps struct {
	Fs        afero.Fs
	Resolver  *paths.Resolver
	Validator *integrity.Validator
	Backups   *backup.Store
	Fallbacks *fallback.Resolver
	Preserver *preserve.Preserver
	Plans     *manual.Builder
	Reporter  *diag.Reporter
	Sessions  *history.Manager
	Lock      *lock.SessionLock
	Updater   Updater
	Notify    domain.Notifier
}

// New creates an orchestrator. All collaborators except Sessions and
// Notify are required.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if deps.Updater == nil {
		return nil, fmt.Errorf("updater cannot be nil")
	}
	if deps.Fs == nil || deps.Resolver == nil || deps.Validator == nil ||
		deps.Backups == nil || deps.Fallbacks == nil || deps.Preserver == nil ||
		deps.Plans == nil || deps.Reporter == nil || deps.Lock == nil {
		return nil, fmt.Errorf("all collaborators must be provided")
	}

	notify := deps.Notify
	if notify == nil {
		notify = domain.NullNotifier
	}

	return &Orchestrator{
		cfg:       cfg,
		fs:        deps.Fs,
		resolver:  deps.Resolver,
		validator: deps.Validator,
		backups:   deps.Backups,
		fallbacks: deps.Fallbacks,
		preserver: deps.Preserver,
		plans:     deps.Plans,
		reporter:  deps.Reporter,
		sessions:  deps.Sessions,
		lock:      deps.Lock,
		updater:   deps.Updater,
		notify:    notify,
	}, nil
}

// environmentCheck is the outcome of one validation pass.
type environmentCheck struct {
	valid        bool
	missingFiles []string
	issues       []string
}

// PerformUpdate runs the full update state machine. The returned
// session is always in a terminal state; it is never left InProgress.
func (o *Orchestrator) PerformUpdate(ctx context.Context, targetVersion string) (session *domain.UpdateSession, err error) {
	session = &domain.UpdateSession{
		SessionID:     uuid.NewString(),
		TargetVersion: targetVersion,
		Status:        domain.StatusPending,
		StartTime:     time.Now(),
	}

	log := logger.With("session_id", session.SessionID, "target_version", targetVersion)

	// Fail fast on a concurrent session rather than interleave
	if lockErr := o.lock.Acquire("update", session.SessionID); lockErr != nil {
		session.Status = domain.StatusFailed
		session.EndTime = time.Now()
		session.Report = o.reporter.Log(lockErr, o.sessionContext(session))
		return session, lockErr
	}

	defer func() {
		// Catch-all boundary: any unhandled fault becomes a report and
		// the session ends Failed, never InProgress.
		if r := recover(); r != nil {
			faultErr := fmt.Errorf("%w: %v", domain.ErrUnexpected, r)
			session.Report = o.reporter.Log(faultErr, o.sessionContext(session))
			session.Status = domain.StatusFailed
			err = faultErr
		}
		if !session.Status.Terminal() {
			session.Status = domain.StatusFailed
		}
		session.EndTime = time.Now()

		if session.BackupID != "" {
			o.backups.Unpin(session.BackupID)
		}
		if releaseErr := o.lock.Release(); releaseErr != nil {
			log.Error("failed to release session lock", "error", releaseErr)
		}
		o.persistSession(session)

		log.Info("update session finished", "status", string(session.Status))
	}()

	session.Status = domain.StatusInProgress
	o.notify("update started", domain.SeverityInfo, map[string]string{
		"session_id": session.SessionID,
		"version":    targetVersion,
	})

	// Step 1: validate environment, with automatic fallback repair
	check := o.validateEnvironment(ctx)
	if !check.valid {
		check = o.attemptFallbackRepair(ctx, check)
	}
	if !check.valid {
		valErr := fmt.Errorf("%w: environment invalid: %v", domain.ErrValidation, check.issues)
		session.Plan = o.buildPlan(targetVersion, domain.KindValidation, valErr.Error(), check.missingFiles)
		session.Report = o.reporter.Log(valErr, o.sessionContext(session))
		session.Status = domain.StatusFailed
		return session, valErr
	}

	// Step 2: backup; without one it is not safe to proceed
	record, backupErr := o.backups.Create(ctx, o.currentVersion(), o.cfg.InstallDir)
	if backupErr != nil {
		session.Plan = o.buildPlan(targetVersion, domain.KindResource, backupErr.Error(), nil)
		session.Report = o.reporter.Log(backupErr, o.sessionContext(session))
		session.Status = domain.StatusFailed
		return session, backupErr
	}
	session.BackupID = record.BackupID
	o.backups.Pin(record.BackupID)

	// Step 3: preserve user data, best effort. Originals stay in place,
	// so failure here is logged, not fatal.
	holdingDir := filepath.Join(o.cfg.HoldingDir, session.SessionID)
	preserved := o.preserveData(ctx, holdingDir)

	// Step 4: apply the new version through the external updater
	applyErr := o.updater.Apply(ctx, targetVersion)
	if applyErr != nil {
		applyErr = fmt.Errorf("%w: %v", domain.ErrApply, applyErr)
		return o.rollback(ctx, session, record, applyErr)
	}

	// Step 5: re-validate the environment post-apply
	if recheck := o.validateEnvironment(ctx); !recheck.valid {
		revalErr := fmt.Errorf("%w: post-update validation failed: %v", domain.ErrValidation, recheck.issues)
		return o.rollback(ctx, session, record, revalErr)
	}

	// Step 6: restore preserved data, prune old backups, finalize
	if len(preserved) > 0 {
		if restoreErr := o.preserver.Restore(ctx, preserved); restoreErr != nil {
			log.Warn("preserved data failed restore verification", "error", restoreErr)
			o.reporter.Log(restoreErr, o.sessionContext(session))
			o.notify("some preserved data could not be verified after restore",
				domain.SeverityWarning, map[string]string{"holding_dir": holdingDir})
		}
	}

	o.backups.Unpin(session.BackupID)
	if cleanupErr := o.backups.Cleanup(); cleanupErr != nil {
		log.Warn("backup cleanup failed", "error", cleanupErr)
	}

	// Holding data is discarded only after a fully confirmed success
	if discardErr := o.preserver.DiscardHolding(holdingDir); discardErr != nil {
		log.Warn("failed to discard holding directory", "path", holdingDir, "error", discardErr)
	}

	session.Status = domain.StatusSuccess
	o.notify("update complete", domain.SeverityInfo, map[string]string{
		"session_id": session.SessionID,
		"version":    targetVersion,
	})
	return session, nil
}

// rollback restores the pre-update tree. The backup must exist and
// pass verification before the session may reach RolledBack.
func (o *Orchestrator) rollback(ctx context.Context, session *domain.UpdateSession, record *domain.BackupRecord, cause error) (*domain.UpdateSession, error) {
	logger.Get().Warn("update failed, rolling back",
		"session_id", session.SessionID,
		"backup_id", record.BackupID,
		"cause", cause,
	)
	o.notify("update failed, restoring previous version", domain.SeverityError, map[string]string{
		"session_id": session.SessionID,
		"backup_id":  record.BackupID,
	})

	restoreErr := o.backups.Restore(ctx, record.ArchivePath, o.cfg.InstallDir)
	if restoreErr != nil {
		// Automation is out of options: highest-severity manual plan
		combined := fmt.Errorf("%v; rollback also failed: %v", cause, restoreErr)
		plan := o.buildPlan(session.TargetVersion, domain.KindIntegrity, combined.Error(), nil)
		plan.Difficulty = domain.DifficultyHard
		plan.Warnings = append(plan.Warnings,
			"Automatic rollback failed: do not start the application until recovery is complete.")
		session.Plan = plan
		session.Report = o.reporter.Log(combined, o.sessionContext(session))
		session.Status = domain.StatusFailed
		return session, combined
	}

	session.Report = o.reporter.Log(cause, o.sessionContext(session))
	session.Status = domain.StatusRolledBack
	return session, cause
}

// validateEnvironment checks the layout, every critical file, and the
// dependency list. It gathers the complete picture instead of
// stopping at the first problem.
func (o *Orchestrator) validateEnvironment(ctx context.Context) environmentCheck {
	check := environmentCheck{valid: true}

	if !o.resolver.ValidateLayout(o.cfg.InstallDir, o.cfg.LayoutThreshold) {
		check.valid = false
		check.issues = append(check.issues, fmt.Sprintf("installation layout is incomplete: %s", o.cfg.InstallDir))
	}

	for _, cf := range o.cfg.CriticalFiles {
		path, found := o.resolver.FindCriticalFile(cf.Aliases)
		if !found {
			check.valid = false
			check.missingFiles = append(check.missingFiles, cf.Aliases[0])
			check.issues = append(check.issues, fmt.Sprintf("critical file missing: %s", cf.Name))
			continue
		}
		outcome := o.validator.CheckFile(ctx, path)
		if !outcome.IsValid {
			check.valid = false
			check.missingFiles = append(check.missingFiles, filepath.Base(path))
			check.issues = append(check.issues, fmt.Sprintf("critical file invalid: %s: %v", cf.Name, outcome.Errors))
		}
	}

	summary := integrity.Summarize(o.validator.ValidateDependencies(o.cfg.Dependencies))
	if !summary.Healthy() {
		check.valid = false
		check.issues = append(check.issues, summary.CriticalIssues...)
	}

	return check
}

// attemptFallbackRepair tries verified alternative copies for each
// missing critical file, then re-validates.
func (o *Orchestrator) attemptFallbackRepair(ctx context.Context, check environmentCheck) environmentCheck {
	if len(check.missingFiles) == 0 {
		return check
	}

	repaired := 0
	for _, name := range check.missingFiles {
		option := o.fallbacks.FindAlternative(ctx, name)
		if option == nil {
			continue
		}
		targetPath := filepath.Join(o.cfg.InstallDir, name)
		if err := o.fallbacks.ExecuteOption(ctx, *option, targetPath); err != nil {
			logger.Get().Warn("fallback execution failed", "file", name, "error", err)
			continue
		}
		o.resolver.AddSearchPath(o.cfg.InstallDir)
		repaired++
	}

	if repaired == 0 {
		return check
	}

	o.notify("recovered missing files from alternative locations", domain.SeverityWarning,
		map[string]string{"repaired": fmt.Sprintf("%d", repaired)})
	return o.validateEnvironment(ctx)
}

// preserveData identifies and copies user data into the holding area.
func (o *Orchestrator) preserveData(ctx context.Context, holdingDir string) []domain.DataFile {
	files, err := o.preserver.Identify(o.cfg.InstallDir)
	if err != nil {
		logger.Get().Warn("data identification failed", "error", err)
		return nil
	}
	if len(files) == 0 {
		return nil
	}

	preserved, err := o.preserver.Preserve(ctx, files, holdingDir)
	if err != nil {
		// Non-fatal: originals are untouched in place
		logger.Get().Warn("data preservation incomplete", "error", err)
		o.reporter.Log(err, map[string]string{"holding_dir": holdingDir})
	}
	return preserved
}

func (o *Orchestrator) buildPlan(targetVersion string, kind domain.ErrorKind, message string, missingFiles []string) *domain.ManualPlan {
	plan := o.plans.BuildPlan(targetVersion, manual.Context{
		Kind:         kind,
		Message:      message,
		MissingFiles: missingFiles,
	})
	return &plan
}

func (o *Orchestrator) sessionContext(session *domain.UpdateSession) map[string]string {
	ctx := map[string]string{
		"session_id":     session.SessionID,
		"target_version": session.TargetVersion,
		"install_dir":    o.cfg.InstallDir,
	}
	if session.BackupID != "" {
		ctx["backup_id"] = session.BackupID
	}
	if session.Plan != nil {
		ctx["manual_plan"] = session.Plan.PlanID
	}
	return ctx
}

func (o *Orchestrator) persistSession(session *domain.UpdateSession) {
	if o.sessions == nil {
		return
	}
	if err := o.sessions.SaveSession(session); err != nil {
		logger.Get().Warn("failed to persist session history", "error", err)
	}
}

// currentVersion reads the installed VERSION file, if present.
func (o *Orchestrator) currentVersion() string {
	data, err := afero.ReadFile(o.fs, filepath.Join(o.cfg.InstallDir, "VERSION"))
	if err != nil {
		return "unknown"
	}
	v := strings.TrimSpace(string(data))
	if len(v) > 32 {
		v = v[:32]
	}
	return v
}
