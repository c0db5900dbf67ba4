package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotRunning    = errors.New("job is not running")
	ErrUnknownJobType   = errors.New("unknown job type")
	ErrInvalidPayload   = errors.New("invalid job payload")
	ErrInvalidPriority  = errors.New("invalid job priority")
	ErrInvalidRetention = errors.New("retention must be at least one day")
	ErrInvalidStatus    = errors.New("invalid job status")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type JobType string

const (
	JobTypeEnrichment         JobType = "enrichment"
	JobTypeRelationsDiscovery JobType = "relations_discovery"
)

const (
	DefaultMaxAttempts = 3

	PriorityHigh   = 1
	PriorityNormal = 5
	PriorityLow    = 10
)

// Payload is the typed body of a job. Each JobType has exactly one concrete
// payload struct; DecodePayload picks it from the discriminant.
type Payload interface {
	JobType() JobType
	// EntityID is the anime the job targets, used for per-entity lookups.
	EntityID() int64
}

type EnrichmentPayload struct {
	AnimeID int64 `json:"entity_id"`
}

func (EnrichmentPayload) JobType() JobType  { return JobTypeEnrichment }
func (p EnrichmentPayload) EntityID() int64 { return p.AnimeID }

type RelationsDiscoveryPayload struct {
	AnimeID int64 `json:"entity_id"`
}

func (RelationsDiscoveryPayload) JobType() JobType  { return JobTypeRelationsDiscovery }
func (p RelationsDiscoveryPayload) EntityID() int64 { return p.AnimeID }

// DecodePayload turns the stored JSON blob back into the payload variant
// selected by jobType.
func DecodePayload(jobType JobType, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch jobType {
	case JobTypeEnrichment:
		var e EnrichmentPayload
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		p = e
	case JobTypeRelationsDiscovery:
		var r RelationsDiscoveryPayload
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		p = r
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	if p.EntityID() <= 0 {
		return nil, fmt.Errorf("%w: entity_id must be positive", ErrInvalidPayload)
	}
	return p, nil
}

// NewPayload builds the payload variant for jobType targeting animeID.
func NewPayload(jobType JobType, animeID int64) (Payload, error) {
	var p Payload
	switch jobType {
	case JobTypeEnrichment:
		p = EnrichmentPayload{AnimeID: animeID}
	case JobTypeRelationsDiscovery:
		p = RelationsDiscoveryPayload{AnimeID: animeID}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	if animeID <= 0 {
		return nil, fmt.Errorf("%w: entity_id must be positive", ErrInvalidPayload)
	}
	return p, nil
}

type Job struct {
	ID      string
	Type    JobType
	Payload json.RawMessage

	// EntityID mirrors the payload's target so the store can filter on it
	// without parsing JSON.
	EntityID int64

	Priority int
	Status   Status

	Attempts    int
	MaxAttempts int

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       *string
}

// DecodedPayload returns the typed payload for the job.
func (j *Job) DecodedPayload() (Payload, error) {
	return DecodePayload(j.Type, j.Payload)
}

// JobStats is the per-status breakdown of the queue.
type JobStats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Total     int64 `json:"total"`
}

type JobAttempt struct {
	ID          string
	JobID       string
	AttemptNum  int
	WorkerID    string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       *string
	DurationMS  *int64
}
