// Package lockfile defines the rpms.lock.yaml document and validates it
// against embedded JSON schemas.
package lockfile

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// DefaultName is the lockfile name looked up at the source root
const DefaultName = "rpms.lock.yaml"

// Embedded schema names
const (
	SchemaHeader = "header.schema.json"
	SchemaV1     = "v1.schema.json"
)

//go:embed schema/*.json
var schemaFS embed.FS

// Content is the lockfile body as decoded from YAML, before any validation
type Content map[string]any

// Header holds the fields needed to identify the lockfile dialect
type Header struct {
	Vendor  string `json:"lockfileVendor"`
	Version int    `json:"lockfileVersion"`
}

// PackageRef points at a single rpm or source rpm
type PackageRef struct {
	RepoID   string `json:"repoid"`
	URL      string `json:"url"`
	Checksum string `json:"checksum,omitempty"`
	Size     *int64 `json:"size,omitempty"`
}

// Arch groups the packages and sources of one architecture
type Arch struct {
	Arch     string       `json:"arch"`
	Packages []PackageRef `json:"packages"`
	Sources  []PackageRef `json:"sources"`
}

// Root is a fully validated lockfile
type Root struct {
	Vendor  string `json:"lockfileVendor"`
	Version int    `json:"lockfileVersion"`
	Arches  []Arch `json:"arches"`
}

// Decode parses YAML lockfile data without validating it. An empty
// document decodes to an empty Content.
func Decode(data []byte) (Content, error) {
	var content Content
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, err
	}
	if content == nil {
		content = Content{}
	}
	return content, nil
}

// Vendor returns the declared vendor without validating anything
func (c Content) Vendor() string {
	v, _ := c["lockfileVendor"].(string)
	return v
}

// Version returns the declared version as written in the file
func (c Content) Version() string {
	v, ok := c["lockfileVersion"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// ParseHeader validates and decodes only the dialect fields
func ParseHeader(content Content) (*Header, error) {
	var h Header
	if err := decode(content, SchemaHeader, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ParseV1 validates and decodes a complete version 1 lockfile
func ParseV1(content Content) (*Root, error) {
	var r Root
	if err := decode(content, SchemaV1, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decode(content Content, schemaName string, out any) error {
	raw, err := validate(content, schemaName)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode lockfile: %w", err)
	}
	return nil
}

// validate returns the JSON encoding of content when it passes the schema
func validate(content Content, schemaName string) ([]byte, error) {
	schema, err := compiled(schemaName)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("lockfile is not representable as JSON: %w", err)
	}

	// Round trip so the validator sees plain JSON values
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("lockfile does not match %s: %w", schemaName, err)
	}
	return raw, nil
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[string]*jsonschema.Schema{}
)

func compiled(name string) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := schemaCache[name]; ok {
		return s, nil
	}

	f, err := schemaFS.Open("schema/" + name)
	if err != nil {
		return nil, fmt.Errorf("unknown lockfile schema %s: %w", name, err)
	}
	defer f.Close()

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, f); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	s, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	schemaCache[name] = s
	return s, nil
}
