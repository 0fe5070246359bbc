package model

import "time"

// JobState is the lifecycle state of an enrichment job.
type JobState string

// Job lifecycle states. A job moves idle → running → completed/error;
// the only way out of a terminal state is a fresh Start.
const (
	JobIdle      JobState = "idle"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobError     JobState = "error"
)

// Terminal reports whether the state is completed or error.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// Stage tags the pipeline stage currently executing.
type Stage string

// Pipeline stages in execution order.
const (
	StageDiscover Stage = "discovering"
	StageScrape   Stage = "scraping"
	StageEnrich   Stage = "enriching"
	StageVerify   Stage = "verifying"
	StageExport   Stage = "exporting"
)

// StartRequest is the input to a pipeline run.
type StartRequest struct {
	ServiceCategory   string `json:"serviceCategory"`
	Region            string `json:"region"`
	MinReviews        int    `json:"minReviews"`
	MaxResults        int    `json:"maxResults"`
	LimitOnePerDomain bool   `json:"limitOnePerDomain"`
}

// JobStatus is the mutable record for the current job. The orchestrator
// is its only writer; everyone else receives value snapshots.
type JobStatus struct {
	ID             string     `json:"id"`
	State          JobState   `json:"state"`
	Stage          Stage      `json:"stage,omitempty"`
	Progress       int        `json:"progress"`
	Total          int        `json:"total"`
	Message        string     `json:"message"`
	ListingsFound  int        `json:"listingsFound"`
	WebsitesFound  int        `json:"websitesFound"`
	EmailsFound    int        `json:"emailsFound"`
	EmailsVerified int        `json:"emailsVerified"`
	CSVReady       bool       `json:"csvReady"`
	Error          string     `json:"error,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}
