package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// CanonicalJSON renders s without the per-export metadata. encoding/json
// sorts map keys and compacts raw documents, so equal overlay states give
// equal bytes regardless of the database they came from.
func CanonicalJSON(s *Snapshot) ([]byte, error) {
	c := *s
	c.Meta = Meta{SchemaVersion: s.Meta.SchemaVersion}
	data, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	return data, nil
}

// ComputeSnapshotRev hashes canonical snapshot bytes.
func ComputeSnapshotRev(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Rev returns the revision of s.
func Rev(s *Snapshot) (string, error) {
	data, err := CanonicalJSON(s)
	if err != nil {
		return "", err
	}
	return ComputeSnapshotRev(data), nil
}

// PrettyJSON renders s, metadata included, for writing to disk.
func PrettyJSON(s *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot json: %w", err)
	}
	return append(data, '\n'), nil
}

// firstDiff describes where two canonical documents diverge.
func firstDiff(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			start := max(i-20, 0)
			end := min(i+20, n)
			return fmt.Sprintf("difference at byte %d: ...%s... vs ...%s...",
				i, strings.ReplaceAll(a[start:end], "\n", "\\n"),
				strings.ReplaceAll(b[start:end], "\n", "\\n"))
		}
	}
	if len(a) != len(b) {
		return fmt.Sprintf("length mismatch: %d vs %d", len(a), len(b))
	}
	return "identical"
}
