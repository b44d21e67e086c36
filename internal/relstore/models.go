package relstore

// Project is the top-level indexing scope (spec §3): a root path plus
// include/exclude globs and its own decay tuning.
type Project struct {
	ID             string
	Slug           string
	RootPath       string
	IncludeGlobs   []string
	ExcludeGlobs   []string
	StrengthWeight float64
	HalfLifeDays   float64
	CreatedAt      int64
	UpdatedAt      int64
}

// Repository ties a project to a git remote and the last commit indexed
// from it, so GitSink knows where to resume.
type Repository struct {
	ID                string
	ProjectID         string
	Provider          string
	Owner             string
	Repo              string
	Branch            string
	LastIndexedCommit string
	CreatedAt         int64
	UpdatedAt         int64
}

// Memory is a single indexed unit: a file, commit, PR, or agent note
// (spec §3's Memory entity).
type Memory struct {
	ID                  string
	ProjectID           string
	RepositoryID        string
	Source              string
	MemoryType          string
	ContentHash         string
	Content             string
	Title               string
	Author              string
	Language            string
	FilePath            string
	LineStart           int
	LineEnd             int
	Keywords            []string
	Tags                []string
	Context             string
	RetrievalCount      int
	LastAccessed        int64
	SynthesizedSummary  bool
	CreatedAt           int64
	UpdatedAt           int64
}

// Chunk is a sub-span of a Memory's content (spec §3's Chunk entity).
type Chunk struct {
	ID          string
	MemoryID    string
	ProjectID   string
	Content     string
	ContentHash string
	StartLine   int
	EndLine     int
	StartByte   int
	EndByte     int
	NodeType    string
	NodeName    string
	Language    string
}

// MemoryLink is a directional, typed edge between two memories
// (spec §3's Link entity).
type MemoryLink struct {
	ID         int64
	ProjectID  string
	SourceID   string
	TargetID   string
	LinkType   string
	Confidence float64
	Context    string
	CreatedBy  string
	CreatedAt  int64
}

// JobStatus is one of a Job's lifecycle states (spec §4.10).
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobRunning    JobStatus = "running"
	JobRetry      JobStatus = "retry"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Job is a unit of asynchronous work processed by the queue (spec §4.10).
type Job struct {
	ID             string
	JobType        string
	Status         JobStatus
	Payload        string
	Priority       int
	ScheduledAt    int64
	LockedAt       int64
	LockedBy       string
	Attempts       int
	MaxRetries     int
	LastError      string
	TotalItems     int
	ProcessedItems int
	FailedItems    int
	CreatedAt      int64
	UpdatedAt      int64
}
