// Package domain holds the ingest service's types and ports
package domain

// Table identifies an import destination
type Table string

// Import destinations
const (
	TableUserPII       Table = "user_pii"
	TableCourses       Table = "courses"
	TableProfiles      Table = "skillboost_profile"
	TableMasterClasses Table = "master_classes"
)

// Mode selects how existing rows are treated
type Mode string

// Operation modes
const (
	ModeCreate       Mode = "create"
	ModeUpdate       Mode = "update"
	ModeCreateUpdate Mode = "create_update"
)

// Valid reports whether the mode is one of the supported three
func (m Mode) Valid() bool {
	switch m {
	case ModeCreate, ModeUpdate, ModeCreateUpdate:
		return true
	}
	return false
}

// CanCreate reports whether the mode creates missing rows
func (m Mode) CanCreate() bool { return m == ModeCreate || m == ModeCreateUpdate }

// CanUpdate reports whether the mode updates existing rows
func (m Mode) CanUpdate() bool { return m == ModeUpdate || m == ModeCreateUpdate }

// Spec describes one import
type Spec struct {
	Table Table
	// Mapping renames CSV headers to database columns. Headers without a
	// mapping are dropped
	Mapping map[string]string
	Mode    Mode
	// UpdateKeys are the columns used to match existing rows for the
	// user_pii table, default email. The other tables match on their
	// composite keys regardless
	UpdateKeys []string
	// Inject adds constant columns to every row, e.g. master_class_name
	Inject map[string]string
}

// Row is one mapped, converted CSV row
type Row map[string]any

// Stats aggregates one import
type Stats struct {
	TotalRows int
	Created   int
	Updated   int
	Skipped   int
	// Errors carries the first few row failures in detail
	Errors []string
	// TotalErrors is always the full count
	TotalErrors int
}

const maxDetailedErrors = 5

// AddError records a row failure, keeping only the first few in detail
func (s *Stats) AddError(msg string) {
	s.TotalErrors++
	if len(s.Errors) < maxDetailedErrors {
		s.Errors = append(s.Errors, msg)
	}
}

// columns allow-lists the importable columns per table. SQL identifiers are
// only ever taken from here
var columns = map[Table][]string{
	TableUserPII: {
		"email", "name", "phone_number", "gender", "country", "state", "city",
		"date_of_birth", "designation", "class_stream", "degree_passout_year",
		"occupation", "linkedin", "participated_in_academy_1",
	},
	TableCourses: {
		"email", "problem_statement", "share_skill_badge_public_link", "valid", "remarks",
	},
	TableProfiles: {
		"email", "google_cloud_skills_boost_profile_link", "valid", "remarks",
	},
	TableMasterClasses: {
		"email", "master_class_name", "platform", "link", "total_duration",
		"watch_time", "live", "recorded", "watched_duration_updated_at",
		"time_watched", "valid",
	},
}

// Columns returns the importable columns for a table
func Columns(t Table) []string { return columns[t] }

// KnownColumn reports whether col is importable for the table
func KnownColumn(t Table, col string) bool {
	for _, c := range columns[t] {
		if c == col {
			return true
		}
	}
	return false
}

// RequiredKeys returns the columns a row must carry per table
func RequiredKeys(t Table) []string {
	switch t {
	case TableCourses:
		return []string{"email", "problem_statement"}
	case TableProfiles:
		return []string{"email", "google_cloud_skills_boost_profile_link"}
	case TableMasterClasses:
		return []string{"email", "master_class_name"}
	default:
		return []string{"email"}
	}
}
