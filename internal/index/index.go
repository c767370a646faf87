package index

// ExportIndex defines the interface for export index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type ExportIndex interface {
	RecordRun(run RunRow, groups []GroupRow) (int64, error)
	LatestRun() (*RunRow, error)
	LastChecksum(input string) (string, error)
	ListGroups() ([]GroupRow, error)
	GetGroup(key string) (*GroupRow, error)
	GroupRecords(key string, limit, offset int) ([]RecordRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Duplicates() ([]DuplicatePage, error)
	Close() error
}

// Verify *DB satisfies ExportIndex at compile time.
var _ ExportIndex = (*DB)(nil)
