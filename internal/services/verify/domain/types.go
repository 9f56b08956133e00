// Package domain holds the verification service's types and ports
package domain

import "time"

// EntityKind distinguishes what a target claims
type EntityKind string

// Supported entity kinds
const (
	EntityBadge   EntityKind = "badge"
	EntityProfile EntityKind = "profile"
)

// Status is the tri-state verification outcome
type Status int

const (
	// StatusPending means the attempt failed transiently and must retry later
	StatusPending Status = iota
	// StatusValid is terminal and protected against silent downgrades
	StatusValid
	// StatusInvalid is terminal unless explicitly re-verified
	StatusInvalid
)

// String returns the status label used in logs and run rows
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	default:
		return "pending"
	}
}

// Target is one claimed external credential to check
type Target struct {
	// Email identifies the person claiming the credential
	Email string
	// CredentialKey is the expected credential name. Badges carry the
	// course problem statement; profiles carry the profile sentinel
	CredentialKey string
	// ClaimedURL is the externally supplied link
	ClaimedURL string
	Entity     EntityKind
}

// Key uniquely identifies a target within one run
func (t Target) Key() string { return t.Email + "\x1f" + t.CredentialKey }

// Verdict is the outcome of evaluating one target
type Verdict struct {
	Status Status
	// Evidence is the human-readable reason, naming the tier or failure
	Evidence string
	// ExtractedDate persists independently of Status so a pending but
	// dated record can resolve later without a re-fetch
	ExtractedDate *time.Time
}

// Result pairs a target with its verdict for the flush path
type Result struct {
	Target  Target
	Verdict Verdict
	// Skipped marks a target whose stored valid verdict was authoritative,
	// left untouched by a non-forced pass
	Skipped bool
}

// RunOpts selects what a verification run covers
type RunOpts struct {
	Profiles bool
	Badges   bool
	// Limit caps how many pending rows are pulled per entity, 0 = all
	Limit   int
	Workers int
	// Force re-decides already-valid rows. Even forced, only a terminal
	// outcome may downgrade a stored valid verdict
	Force bool
}

// Summary aggregates one verification run
type Summary struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	ProfilesVerified int       `json:"profiles_verified"`
	ProfilesFailed   int       `json:"profiles_failed"`
	ProfilesPending  int       `json:"profiles_pending"`
	BadgesVerified   int       `json:"badges_verified"`
	BadgesFailed     int       `json:"badges_failed"`
	BadgesPending    int       `json:"badges_pending"`
	// SkippedValid counts targets left alone under the protection rule
	SkippedValid int `json:"skipped_valid"`
	// Errors carries the first few messages in detail
	Errors []string `json:"errors"`
	// TotalErrors is always the full count
	TotalErrors int `json:"error_count"`
}

// Tally folds one result into the summary counters
func (s *Summary) Tally(r Result) {
	switch r.Target.Entity {
	case EntityProfile:
		switch r.Verdict.Status {
		case StatusValid:
			s.ProfilesVerified++
		case StatusInvalid:
			s.ProfilesFailed++
		default:
			s.ProfilesPending++
		}
	default:
		switch r.Verdict.Status {
		case StatusValid:
			s.BadgesVerified++
		case StatusInvalid:
			s.BadgesFailed++
		default:
			s.BadgesPending++
		}
	}
}

// maxDetailedErrors caps how many error messages are surfaced in detail
const maxDetailedErrors = 5

// AddError records an error message, keeping only the first few in detail
func (s *Summary) AddError(msg string) {
	s.TotalErrors++
	if len(s.Errors) < maxDetailedErrors {
		s.Errors = append(s.Errors, msg)
	}
}
