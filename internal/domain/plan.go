package domain

// Difficulty rates how demanding a manual plan is for the end user.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ManualStep is one human-executable recovery step.
type ManualStep struct {
	Index        int
	Title        string
	Description  string
	Instructions []string

	// Verification tells the user how to confirm the step worked
	Verification string

	// IsCritical marks steps that must not be skipped
	IsCritical bool
}

// ManualPlan is an ordered, deterministic recovery procedure produced
// when automated recovery is not possible. Immutable once built.
type ManualPlan struct {
	PlanID           string
	TargetVersion    string
	Steps            []ManualStep
	EstimatedMinutes int
	Difficulty       Difficulty
	Prerequisites    []string
	Warnings         []string
}
