package engine

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/page"
)

// EngineVersion is stamped into every new database's metadata.json
// (spec.md §6 "On-disk layout").
const EngineVersion = "1.0.0"

// metadataFileName is the fixed on-disk name spec.md §6 names.
const metadataFileName = "metadata.json"

// Metadata is the small JSON sidecar every database directory carries:
// schema epoch (a cache, refreshed from the catalog on every open; the
// catalog itself is the source of truth), engine version, and page size
// (spec.md §6).
type Metadata struct {
	SchemaEpoch   uint64 `json:"schema_epoch"`
	EngineVersion string `json:"engine_version"`
	PageSize      int    `json:"page_size"`
}

func metadataPath(dir string) string { return filepath.Join(dir, metadataFileName) }

// loadOrCreateMetadata reads metadata.json if present, validating its
// page size against this build's page.Size (spec.md §6 "opening a
// database with a mismatching page size fails with
// OpenError::IncompatibleFormat"). Absent a file (a fresh directory), it
// writes one stamped with the current page size and engine version.
func loadOrCreateMetadata(dir string) (Metadata, error) {
	path := metadataPath(dir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		m := Metadata{EngineVersion: EngineVersion, PageSize: page.Size}
		if werr := writeMetadata(dir, m); werr != nil {
			return Metadata{}, werr
		}
		return m, nil
	}
	if err != nil {
		return Metadata{}, nexuserr.Wrap(nexuserr.KindIO, err, "read %s", path)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, nexuserr.Wrap(nexuserr.KindIO, err, "parse %s", path)
	}
	if m.PageSize != page.Size {
		return Metadata{}, nexuserr.New(nexuserr.KindIO,
			"database at %s was created with page size %d, this build uses %d (OpenError::IncompatibleFormat)",
			dir, m.PageSize, page.Size)
	}
	return m, nil
}

func writeMetadata(dir string, m Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "encode metadata")
	}
	if err := os.WriteFile(metadataPath(dir), data, 0o644); err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "write %s", metadataPath(dir))
	}
	return nil
}
