package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"taskherd/pkg/logx"
)

// LoadCollection reads a JSON array of records from path into out.
//
// A missing file is not an error: out is left empty. A corrupt or unreadable
// file degrades to an empty collection with a warning rather than failing
// startup; the next successful save rewrites the file whole.
func LoadCollection[T any](path string, out *[]T, log logx.Logger) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			*out = nil
			return nil
		}
		log.Warn("collection unreadable, starting empty", logx.String("path", path), logx.Err(err))
		*out = nil
		return nil
	}
	if len(b) == 0 {
		*out = nil
		return nil
	}
	var recs []T
	if err := json.Unmarshal(b, &recs); err != nil {
		log.Warn("collection corrupt, starting empty", logx.String("path", path), logx.Err(err))
		*out = nil
		return nil
	}
	*out = recs
	return nil
}

// SaveCollection writes records as an indented JSON array using a temp file
// in the same directory followed by an atomic rename. A failed write is
// propagated; it never reports success after writing a partial file.
func SaveCollection[T any](path string, recs []T) error {
	if recs == nil {
		recs = []T{}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal collection: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
