package models

// Indexer names accepted by Request.Indexer
const (
	IndexerCreaterepo = "createrepo"
	IndexerNative     = "native"
)

// Request contains configuration for one rpm prefetch run
type Request struct {
	// Input/Output
	SourceDir  string // Directory holding rpms.lock.yaml
	OutputDir  string // Output root; packages land in OutputDir/deps/rpm
	OutputFile string // Where the JSON RequestOutput goes, empty for stdout

	// Download tuning
	Concurrency       int     // Max simultaneous transfers
	Retries           int     // Per-request retry budget
	RequestsPerSecond float64 // 0 disables rate limiting

	// Verification
	StrictVerify bool // Fail the run on size/checksum mismatch

	// External tools
	RPMPath        string // rpm binary used for header queries
	Indexer        string // createrepo or native
	CreaterepoPath string // createrepo_c binary

	// Native indexer options
	CompressType  string // gz, xz or zst
	GPGKeyPath    string
	GPGPassphrase string
}

// DefaultRequest returns a Request populated with the command line defaults
func DefaultRequest() Request {
	return Request{
		SourceDir:      ".",
		OutputDir:      "./cachi2-output",
		Concurrency:    5,
		Retries:        3,
		RPMPath:        "rpm",
		Indexer:        IndexerCreaterepo,
		CreaterepoPath: "createrepo_c",
		CompressType:   "gz",
	}
}
