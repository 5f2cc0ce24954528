package domain

import "time"

// BackupRecord describes one versioned backup archive.
type BackupRecord struct {
	// BackupID uniquely identifies the backup (version + timestamp derived)
	BackupID string

	// SourceVersion is the application version the backup was taken from
	SourceVersion string

	// CreatedAt is the archive creation time
	CreatedAt time.Time

	// ArchivePath is the absolute path of the archive artifact
	ArchivePath string

	// Checksum is the SHA-256 digest of the archive, hex encoded
	Checksum string

	// SizeBytes is the archive size
	SizeBytes int64
}

// BackupStatistics summarizes the backup store contents.
type BackupStatistics struct {
	Count      int
	TotalBytes int64
	Oldest     time.Time
	Newest     time.Time
}

// DataCategory classifies user files found under an install tree.
type DataCategory string

const (
	CategoryDatabase DataCategory = "database"
	CategoryConfig   DataCategory = "config"
	CategoryUserData DataCategory = "userdata"
	CategoryCache    DataCategory = "cache"
)

// DataFile is a user file tracked through one preserve/restore cycle.
// BackupPath and Checksum are set only when preservation succeeded.
type DataFile struct {
	Path       string
	Category   DataCategory
	IsCritical bool
	BackupPath string
	Checksum   string
}

// Preserved reports whether this file was copied to the holding area.
func (f *DataFile) Preserved() bool {
	return f.BackupPath != ""
}

// DiscoveryMethod identifies how a fallback candidate was located.
type DiscoveryMethod string

const (
	DiscoverySearchPath  DiscoveryMethod = "search_path"
	DiscoveryRegistry    DiscoveryMethod = "registry"
	DiscoveryEnvironment DiscoveryMethod = "environment"
	DiscoveryRecursive   DiscoveryMethod = "recursive"
)

// FallbackOption is a ranked alternative location for a missing file.
// Options are ephemeral, generated per recovery attempt.
type FallbackOption struct {
	TargetFile      string
	CandidatePath   string
	DiscoveryMethod DiscoveryMethod
	Rank            int
}

// RecoveryPlan bundles the viable fallback options for a set of
// missing files, ordered by rank.
type RecoveryPlan struct {
	Context string
	Options []FallbackOption
}
