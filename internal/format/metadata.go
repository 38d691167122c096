package format

import (
	"sort"
	"sync"
)

// FileRecord describes where a downloaded file came from and what the
// lockfile promised about it.
type FileRecord struct {
	Path      string // Absolute destination path
	IsPackage bool   // False for source rpms
	Arch      string
	RepoID    string
	SourceURL string
	Size      *int64
	Checksum  string // algorithm:hexdigest
}

// Metadata accumulates FileRecords keyed by destination path.
// It is safe for concurrent use; a later record for the same path
// replaces the earlier one.
type Metadata struct {
	mu      sync.Mutex
	records map[string]FileRecord
}

// NewMetadata returns an empty accumulator
func NewMetadata() *Metadata {
	return &Metadata{records: make(map[string]FileRecord)}
}

// Add stores a record
func (m *Metadata) Add(r FileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.Path] = r
}

// Merge copies every record of other into m
func (m *Metadata) Merge(other *Metadata) {
	if other == nil || other == m {
		return
	}
	records := other.Records()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.Path] = r
	}
}

// Get returns the record stored for path
func (m *Metadata) Get(path string) (FileRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[path]
	return r, ok
}

// Len returns the number of records
func (m *Metadata) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Records returns all records sorted by path
func (m *Metadata) Records() []FileRecord {
	m.mu.Lock()
	records := make([]FileRecord, 0, len(m.records))
	for _, r := range m.records {
		records = append(records, r)
	}
	m.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})
	return records
}

// Packages returns the binary package records sorted by path
func (m *Metadata) Packages() []FileRecord {
	var pkgs []FileRecord
	for _, r := range m.Records() {
		if r.IsPackage {
			pkgs = append(pkgs, r)
		}
	}
	return pkgs
}
