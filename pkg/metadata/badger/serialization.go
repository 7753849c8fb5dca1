package badger

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/fragments/pkg/metadata"
)

func encodeRecord(rec *metadata.Record) ([]byte, error) {
	bytes, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return bytes, nil
}

func decodeRecord(bytes []byte) (*metadata.Record, error) {
	var rec metadata.Record
	if err := json.Unmarshal(bytes, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %v: %w", err, metadata.ErrInvalidRecord)
	}
	return &rec, nil
}
