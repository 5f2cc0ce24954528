// Package manual produces deterministic, human-executable recovery
// plans for failures automation cannot fix. Plans are template-driven
// on purpose: recovery instructions must be auditable, never generated.
package manual

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/updateguard/updateguard/internal/domain"
)

// Context classifies the failure a plan must address.
type Context struct {
	Kind         domain.ErrorKind
	Message      string
	MissingFiles []string
}

// Builder builds manual recovery plans.
type Builder struct {
	// AppName parameterizes the instruction text
	AppName string
}

// NewBuilder creates a plan builder for the named application.
func NewBuilder(appName string) *Builder {
	if appName == "" {
		appName = "the application"
	}
	return &Builder{AppName: appName}
}

// standing warnings attached to every plan
func baseWarnings() []string {
	return []string{
		"Always create a backup before making any change.",
		"Never delete original files until the recovery is confirmed working.",
	}
}

// BuildPlan dispatches on a coarse classification of the error context
// and fills one of the canned step templates.
func (b *Builder) BuildPlan(targetVersion string, errCtx Context) domain.ManualPlan {
	plan := domain.ManualPlan{
		PlanID:        uuid.NewString(),
		TargetVersion: targetVersion,
		Warnings:      baseWarnings(),
	}

	switch b.classify(errCtx) {
	case domain.KindValidation:
		b.fillMissingFilePlan(&plan, errCtx)
	case domain.KindPermission:
		b.fillPermissionPlan(&plan)
	default:
		b.fillGenericPlan(&plan)
	}

	for i := range plan.Steps {
		plan.Steps[i].Index = i + 1
	}
	return plan
}

func (b *Builder) classify(errCtx Context) domain.ErrorKind {
	if errCtx.Kind == domain.KindPermission {
		return domain.KindPermission
	}
	msg := strings.ToLower(errCtx.Message)
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access is denied") {
		return domain.KindPermission
	}
	if len(errCtx.MissingFiles) > 0 || errCtx.Kind == domain.KindValidation {
		return domain.KindValidation
	}
	return domain.KindUnexpected
}

func (b *Builder) fillMissingFilePlan(plan *domain.ManualPlan, errCtx Context) {
	files := errCtx.MissingFiles
	if len(files) == 0 {
		files = []string{"the reported file"}
	}
	fileList := strings.Join(files, ", ")

	plan.Difficulty = domain.DifficultyMedium
	plan.EstimatedMinutes = 30
	plan.Prerequisites = []string{
		"A working internet connection to download the release package.",
		fmt.Sprintf("Enough free disk space for a full copy of %s.", b.AppName),
	}
	plan.Steps = []domain.ManualStep{
		{
			Title:       "Back up the current installation",
			Description: fmt.Sprintf("Copy the entire %s installation folder to a safe location.", b.AppName),
			Instructions: []string{
				"Close the application completely.",
				"Copy the installation folder to another drive or folder.",
			},
			Verification: "The copied folder opens and contains the same files as the original.",
			IsCritical:   true,
		},
		{
			Title:       "Download the release package",
			Description: fmt.Sprintf("Download the official %s release for version %s.", b.AppName, plan.TargetVersion),
			Instructions: []string{
				"Open the official download page.",
				fmt.Sprintf("Download the package matching version %s and your operating system.", plan.TargetVersion),
			},
			Verification: "The downloaded file size matches the size listed on the download page.",
			IsCritical:   true,
		},
		{
			Title:       "Extract the package",
			Description: "Extract the downloaded package into a temporary folder.",
			Instructions: []string{
				"Create an empty temporary folder.",
				"Extract the full package contents into it.",
			},
			Verification: "The temporary folder contains the application files without extraction errors.",
			IsCritical:   false,
		},
		{
			Title:       "Locate the missing files",
			Description: fmt.Sprintf("Find the following files in the extracted package: %s.", fileList),
			Instructions: []string{
				fmt.Sprintf("Search the extracted folder for: %s.", fileList),
				"Note the exact folder each file sits in.",
			},
			Verification: "Every listed file has been found in the extracted package.",
			IsCritical:   true,
		},
		{
			Title:       "Replace the missing files",
			Description: "Copy the located files into the matching folders of the installation.",
			Instructions: []string{
				"For each file, copy it into the same relative folder inside the installation.",
				"Do not remove any other files.",
			},
			Verification: "The installation folder now contains every listed file at the expected path.",
			IsCritical:   true,
		},
		{
			Title:       "Verify the application starts",
			Description: fmt.Sprintf("Start %s and confirm it runs.", b.AppName),
			Instructions: []string{
				"Start the application.",
				"Confirm the reported version and that your data is present.",
			},
			Verification: "The application starts without errors and shows your data.",
			IsCritical:   true,
		},
	}
}

func (b *Builder) fillPermissionPlan(plan *domain.ManualPlan) {
	plan.Difficulty = domain.DifficultyHard
	plan.EstimatedMinutes = 45
	plan.Prerequisites = []string{
		"An account with administrator rights on this machine.",
	}
	plan.Warnings = append(plan.Warnings,
		"Changing folder permissions affects every program using that folder.")
	plan.Steps = []domain.ManualStep{
		{
			Title:       "Run the updater with elevated privileges",
			Description: "Retry the update as an administrator.",
			Instructions: []string{
				"Close the application.",
				"Start the updater again using 'Run as administrator' (Windows) or with sudo (macOS/Linux).",
			},
			Verification: "The update either completes or fails with a different error.",
			IsCritical:   true,
		},
		{
			Title:       "Fix the installation folder permissions",
			Description: "Grant your user account write access to the installation folder.",
			Instructions: []string{
				"Open the installation folder's permission settings.",
				"Grant your user account full control over the folder and its contents.",
			},
			Verification: "Creating and deleting a test file inside the folder succeeds.",
			IsCritical:   true,
		},
		{
			Title:       "Relocate the installation to a user-writable folder",
			Description: fmt.Sprintf("If permissions cannot be fixed, move %s under your user profile.", b.AppName),
			Instructions: []string{
				"Copy the installation folder into your home directory.",
				"Update any shortcuts to point at the new location.",
			},
			Verification: "The application starts from the new location.",
			IsCritical:   false,
		},
		{
			Title:       "Add a security-software exclusion",
			Description: "Antivirus tools sometimes block updaters from writing program files.",
			Instructions: []string{
				"Open your security software's exclusion settings.",
				"Add the installation folder and the updater executable as exclusions.",
			},
			Verification: "The security software lists both exclusions as active.",
			IsCritical:   false,
		},
	}
}

func (b *Builder) fillGenericPlan(plan *domain.ManualPlan) {
	plan.Difficulty = domain.DifficultyMedium
	plan.EstimatedMinutes = 40
	plan.Prerequisites = []string{
		"A working internet connection to download the release package.",
	}
	plan.Steps = []domain.ManualStep{
		{
			Title:       "Back up the current installation",
			Description: fmt.Sprintf("Copy the entire %s installation folder to a safe location.", b.AppName),
			Instructions: []string{
				"Close the application completely.",
				"Copy the installation folder to another drive or folder.",
			},
			Verification: "The copied folder opens and contains the same files as the original.",
			IsCritical:   true,
		},
		{
			Title:       "Download the full release",
			Description: fmt.Sprintf("Download the complete %s release for version %s.", b.AppName, plan.TargetVersion),
			Instructions: []string{
				"Open the official download page.",
				fmt.Sprintf("Download the full installer for version %s.", plan.TargetVersion),
			},
			Verification: "The download completes without errors.",
			IsCritical:   true,
		},
		{
			Title:       "Install over the existing installation",
			Description: "Run the installer and point it at the existing installation folder.",
			Instructions: []string{
				"Run the downloaded installer.",
				"Select the existing installation folder when prompted.",
			},
			Verification: "The installer reports a successful installation.",
			IsCritical:   true,
		},
		{
			Title:       "Verify the application",
			Description: fmt.Sprintf("Start %s and confirm version and data.", b.AppName),
			Instructions: []string{
				"Start the application.",
				fmt.Sprintf("Confirm the version shown is %s.", plan.TargetVersion),
				"Confirm your data is present.",
			},
			Verification: "The application runs the new version with your data intact.",
			IsCritical:   true,
		},
		{
			Title:       "Clean up",
			Description: "Remove temporary files once everything is confirmed working.",
			Instructions: []string{
				"Delete the downloaded installer.",
				"Keep the backup from step 1 for at least a week.",
			},
			Verification: "Disk space is reclaimed and the backup is still in place.",
			IsCritical:   false,
		},
	}
}
