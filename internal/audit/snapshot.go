package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/wonny/regimelab/backend/internal/macro"
)

// DataSnapshotID identifies the macro input a detection or run was computed from:
// "macro-<first>-<last>-<sha256 prefix>". Records must already be prepared.
func DataSnapshotID(records []macro.Record) (string, error) {
	if len(records) == 0 {
		return "", macro.ErrNoData
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("hash macro records: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("macro-%s-%s-%s",
		records[0].Date, records[len(records)-1].Date, hex.EncodeToString(sum[:])[:12]), nil
}
