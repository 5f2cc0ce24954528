package manual

import (
	"strings"
	"testing"

	"github.com/updateguard/updateguard/internal/domain"
)

func TestBuildPlan_MissingFiles(t *testing.T) {
	b := NewBuilder("TestApp")

	plan := b.BuildPlan("2.4.0", Context{
		Kind:         domain.KindValidation,
		Message:      "critical file not found",
		MissingFiles: []string{"core.bundle", "render.lib"},
	})

	if plan.PlanID == "" {
		t.Error("plan should carry an id")
	}
	if plan.TargetVersion != "2.4.0" {
		t.Errorf("expected target version 2.4.0, got %s", plan.TargetVersion)
	}
	if plan.Difficulty != domain.DifficultyMedium {
		t.Errorf("missing-file plan should be medium, got %s", plan.Difficulty)
	}
	if plan.EstimatedMinutes <= 0 {
		t.Error("plan should estimate a duration")
	}

	// The first step of any recovery is always a backup
	if len(plan.Steps) == 0 {
		t.Fatal("plan must contain steps")
	}
	if !strings.Contains(strings.ToLower(plan.Steps[0].Title), "back up") {
		t.Errorf("first step should be a backup, got %q", plan.Steps[0].Title)
	}

	// Missing file names appear in the instructions
	var mentions bool
	for _, step := range plan.Steps {
		if strings.Contains(step.Description, "core.bundle") && strings.Contains(step.Description, "render.lib") {
			mentions = true
		}
	}
	if !mentions {
		t.Error("plan should name the missing files")
	}
}

func TestBuildPlan_Permission(t *testing.T) {
	b := NewBuilder("TestApp")

	plan := b.BuildPlan("2.4.0", Context{
		Kind:    domain.KindPermission,
		Message: "permission denied writing install dir",
	})

	if plan.Difficulty != domain.DifficultyHard {
		t.Errorf("permission plan should be hard, got %s", plan.Difficulty)
	}

	var elevation bool
	for _, step := range plan.Steps {
		if strings.Contains(strings.ToLower(step.Title), "elevated") {
			elevation = true
		}
	}
	if !elevation {
		t.Error("permission plan should include an elevation step")
	}

	// A permission message without the explicit kind classifies the same way
	byMessage := b.BuildPlan("2.4.0", Context{
		Kind:    domain.KindUnexpected,
		Message: "open /opt/app: Access is denied.",
	})
	if byMessage.Difficulty != domain.DifficultyHard {
		t.Error("permission text in the message should select the permission plan")
	}
}

func TestBuildPlan_Generic(t *testing.T) {
	b := NewBuilder("TestApp")

	plan := b.BuildPlan("2.4.0", Context{
		Kind:    domain.KindUnexpected,
		Message: "something odd happened",
	})

	if plan.Difficulty != domain.DifficultyMedium {
		t.Errorf("generic plan should be medium, got %s", plan.Difficulty)
	}
	if len(plan.Steps) == 0 {
		t.Fatal("generic plan must contain steps")
	}
}

// Every plan variant shares the structural guarantees callers rely on.
func TestBuildPlan_StructuralInvariants(t *testing.T) {
	b := NewBuilder("TestApp")

	contexts := []Context{
		{Kind: domain.KindValidation, MissingFiles: []string{"core.bundle"}},
		{Kind: domain.KindPermission},
		{Kind: domain.KindUnexpected, Message: "boom"},
	}

	for _, errCtx := range contexts {
		plan := b.BuildPlan("2.4.0", errCtx)

		if len(plan.Steps) < 1 {
			t.Errorf("%s: plan must have at least one step", errCtx.Kind)
		}
		if len(plan.Warnings) == 0 {
			t.Errorf("%s: plan must carry warnings", errCtx.Kind)
		}
		for i, step := range plan.Steps {
			if step.Index != i+1 {
				t.Errorf("%s: step %d has index %d", errCtx.Kind, i, step.Index)
			}
			if step.Title == "" || step.Description == "" {
				t.Errorf("%s: step %d is incomplete", errCtx.Kind, i)
			}
			if len(step.Instructions) == 0 {
				t.Errorf("%s: step %d has no instructions", errCtx.Kind, i)
			}
		}
	}
}

// Identical inputs produce identical plans apart from the generated id.
func TestBuildPlan_Deterministic(t *testing.T) {
	b := NewBuilder("TestApp")
	errCtx := Context{Kind: domain.KindValidation, MissingFiles: []string{"core.bundle"}}

	first := b.BuildPlan("2.4.0", errCtx)
	second := b.BuildPlan("2.4.0", errCtx)

	if len(first.Steps) != len(second.Steps) {
		t.Fatal("step count differs between identical builds")
	}
	for i := range first.Steps {
		if first.Steps[i].Title != second.Steps[i].Title {
			t.Errorf("step %d title differs", i)
		}
		if first.Steps[i].Description != second.Steps[i].Description {
			t.Errorf("step %d description differs", i)
		}
	}
	if first.Difficulty != second.Difficulty || first.EstimatedMinutes != second.EstimatedMinutes {
		t.Error("plan metadata differs between identical builds")
	}
}

func TestNewBuilder_DefaultName(t *testing.T) {
	b := NewBuilder("")
	plan := b.BuildPlan("1.0", Context{Kind: domain.KindUnexpected})

	for _, step := range plan.Steps {
		if strings.Contains(step.Description, "  ") {
			t.Errorf("empty app name left a gap in: %q", step.Description)
		}
	}
	if b.AppName != "the application" {
		t.Errorf("expected default app name, got %q", b.AppName)
	}
}
