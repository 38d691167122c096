package models

// Package represents an rpm with the metadata needed to index it
type Package struct {
	// Core metadata
	Name         string
	Epoch        string
	Version      string
	Release      string
	Architecture string
	Summary      string
	Description  string
	Packager     string
	Vendor       string
	Homepage     string
	License      string
	Group        string
	SourceRPM    string
	BuildTime    int64
	Requires     []string
	Provides     []string

	// File information
	Filename  string // Absolute path on disk
	Location  string // Path relative to the repository root
	Size      int64
	SHA256Sum string
}
