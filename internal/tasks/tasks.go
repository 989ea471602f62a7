// Package tasks defines the task types and payloads that travel through the
// queue. It exists so producers and handlers agree on the wire contract
// without importing each other.
package tasks

import "github.com/google/uuid"

const (
	TypeSyncUser           = "sync_user"
	TypeAnalyzeRepository  = "analyze_repository"
	TypeAnalyzeCommitBatch = "analyze_commit_batch"
	TypeDescribeRepository = "describe_repository"
	TypeGeneratePortfolio  = "generate_portfolio"
)

type SyncUserPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

type AnalyzeRepositoryPayload struct {
	RepositoryID uuid.UUID `json:"repository_id"`
}

type AnalyzeCommitBatchPayload struct {
	RepositoryID uuid.UUID `json:"repository_id"`
	Owner        string    `json:"owner"`
	Name         string    `json:"name"`
	SHAs         []string  `json:"shas"`
}

// CommitBatchResult is the per-batch rollup returned by the commit batch
// handler and summed by the repository aggregation step.
type CommitBatchResult struct {
	Processed    int `json:"processed"`
	Inserted     int `json:"inserted"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	FilesChanged int `json:"files_changed"`
}

// RepositoryAnalysis is the full-repository rollup.
type RepositoryAnalysis struct {
	RepositoryID uuid.UUID `json:"repository_id"`
	NewCommits   int       `json:"new_commits"`
	Processed    int       `json:"processed"`
	Additions    int       `json:"additions"`
	Deletions    int       `json:"deletions"`
	FilesChanged int       `json:"files_changed"`
	Skipped      bool      `json:"skipped"`
}

type DescribeRepositoryPayload struct {
	RepositoryID uuid.UUID `json:"repository_id"`
}

type GeneratePortfolioPayload struct {
	JobID uuid.UUID `json:"job_id"`
}
