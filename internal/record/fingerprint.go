package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Fingerprint is a content hash of a fetched snapshot. Per-table hashes are
// combined in table-name order so the composite does not depend on fetch
// completion order.
type Fingerprint struct {
	TableHashes map[string]string `json:"tableHashes"`
	Composite   string            `json:"composite"`
}

// ComputeFingerprint hashes every record of every table. Records hash by id
// and canonical field JSON (encoding/json sorts map keys).
func ComputeFingerprint(tables map[string][]Record) Fingerprint {
	fp := Fingerprint{TableHashes: make(map[string]string, len(tables))}
	for name, recs := range tables {
		h := sha256.New()
		for _, r := range recs {
			fields, err := json.Marshal(r.Fields)
			if err != nil {
				fields = nil
			}
			h.Write([]byte(r.ID))
			h.Write([]byte{0})
			h.Write(fields)
			h.Write([]byte{'\n'})
		}
		fp.TableHashes[name] = hex.EncodeToString(h.Sum(nil))
	}
	fp.Composite = composite(fp.TableHashes)
	return fp
}

// Changed lists tables whose hash differs between two fingerprints,
// including tables present in only one of them.
func (fp Fingerprint) Changed(other Fingerprint) []string {
	seen := make(map[string]bool)
	var out []string
	for name, h := range fp.TableHashes {
		seen[name] = true
		if other.TableHashes[name] != h {
			out = append(out, name)
		}
	}
	for name := range other.TableHashes {
		if !seen[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func composite(tableHashes map[string]string) string {
	names := make([]string, 0, len(tableHashes))
	for name := range tableHashes {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+tableHashes[name])
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
