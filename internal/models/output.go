package models

import (
	"encoding/json"
	"io"
	"sort"
)

// Component is a single SBOM entry
type Component struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	PURL    string `json:"purl"`
}

// EnvironmentVariable is a variable the downstream build should set
type EnvironmentVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Kind  string `json:"kind"`
}

// ProjectFile is a file the downstream build should create
type ProjectFile struct {
	AbsPath  string `json:"abspath"`
	Template string `json:"template"`
}

// RequestOutput is everything a prefetch run hands back to its caller
type RequestOutput struct {
	Components           []Component           `json:"components"`
	EnvironmentVariables []EnvironmentVariable `json:"environment_variables"`
	ProjectFiles         []ProjectFile         `json:"project_files"`
}

// NewRequestOutput builds a RequestOutput with components sorted by purl
// and nil slices normalized to empty ones.
func NewRequestOutput(components []Component, envVars []EnvironmentVariable, projectFiles []ProjectFile) *RequestOutput {
	if components == nil {
		components = []Component{}
	}
	if envVars == nil {
		envVars = []EnvironmentVariable{}
	}
	if projectFiles == nil {
		projectFiles = []ProjectFile{}
	}
	sort.SliceStable(components, func(i, j int) bool {
		return components[i].PURL < components[j].PURL
	})
	return &RequestOutput{
		Components:           components,
		EnvironmentVariables: envVars,
		ProjectFiles:         projectFiles,
	}
}

// WriteJSON writes the output as indented JSON
func (o *RequestOutput) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}
