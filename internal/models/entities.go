package models

import "time"

// Entity is implemented by every payload type the sync layer tracks.
// EntityID must be stable across updates; Kind selects the local table
// and the server-side canonical row family.
type Entity interface {
	EntityID() string
	Kind() EntityKind
}

// Deployment is one rollout of a project into an environment.
type Deployment struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Environment string    `json:"environment"`
	Status      string    `json:"status"`
	CommitSHA   string    `json:"commit_sha,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

func (d *Deployment) EntityID() string { return d.ID }
func (d *Deployment) Kind() EntityKind { return KindDeployment }

// Project is a deployable service tracked by the dashboard.
type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Repository string `json:"repository,omitempty"`
	Branch     string `json:"branch,omitempty"`
}

func (p *Project) EntityID() string { return p.ID }
func (p *Project) Kind() EntityKind { return KindProject }

// Artifact is a build output attached to a deployment.
type Artifact struct {
	ID           string `json:"id"`
	DeploymentID string `json:"deployment_id"`
	Name         string `json:"name"`
	Digest       string `json:"digest,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

func (a *Artifact) EntityID() string { return a.ID }
func (a *Artifact) Kind() EntityKind { return KindArtifact }

// QueueItem is a pending unit of dashboard work (a requested deploy,
// a scheduled backup, a test run awaiting a slot).
type QueueItem struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Payload    string    `json:"payload,omitempty"`
	Priority   int       `json:"priority,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at,omitempty"`
}

func (q *QueueItem) EntityID() string { return q.ID }
func (q *QueueItem) Kind() EntityKind { return KindQueueItem }
