package sourcecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clipstitch/internal/fileutil"
)

const metadataVersion = 1

// EntryMetadata records how a cached source was obtained.
type EntryMetadata struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	SourceURL string    `json:"source_url,omitempty"`
	MaxHeight int       `json:"max_height,omitempty"`
	Container string    `json:"container,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (m *Manager) metadataPath(id string) string {
	return filepath.Join(m.root, id+".json")
}

// WriteMetadata stores the sidecar for meta.ID atomically.
func (m *Manager) WriteMetadata(ctx context.Context, meta EntryMetadata) error {
	if meta.ID == "" {
		return errors.New("sourcecache: metadata id is empty")
	}
	meta.Version = metadataVersion
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("sourcecache: encode metadata: %w", err)
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	target := m.metadataPath(meta.ID)
	if err := fileutil.WriteFileAtomic(target, payload, 0o644); err != nil {
		return fmt.Errorf("sourcecache: write metadata: %w", err)
	}
	m.logger.DebugContext(ctx, "stored cache metadata", "path", target)
	return nil
}

// LoadMetadata reads the sidecar for id. The bool reports whether one exists.
func (m *Manager) LoadMetadata(id string) (EntryMetadata, bool, error) {
	payload, err := os.ReadFile(m.metadataPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return EntryMetadata{}, false, nil
		}
		return EntryMetadata{}, false, fmt.Errorf("sourcecache: read metadata: %w", err)
	}
	var meta EntryMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return EntryMetadata{}, true, fmt.Errorf("sourcecache: decode metadata: %w", err)
	}
	if meta.Version != metadataVersion {
		return EntryMetadata{}, true, fmt.Errorf("sourcecache: unsupported metadata version %d", meta.Version)
	}
	return meta, true, nil
}
