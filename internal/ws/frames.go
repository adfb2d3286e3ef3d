package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidPKList is returned when an inbound frame's pk_list cannot be
// understood. Protocol violations close the connection rather than
// producing an error frame.
var ErrInvalidPKList = errors.New("invalid pk_list payload")

// pkListRequest is the inbound frame shared by both endpoints:
// {"pk_list": <id | [id, ...]>}.
type pkListRequest struct {
	PKList json.RawMessage `json:"pk_list"`
}

// ParsePKListFrame decodes an inbound frame and normalizes its pk_list.
// A bare identifier is normalized to a one-element list; anything other
// than an identifier or a list of identifiers is rejected.
func ParsePKListFrame(data []byte) ([]uuid.UUID, error) {
	var req pkListRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPKList, err)
	}
	if len(req.PKList) == 0 || string(req.PKList) == "null" {
		return nil, fmt.Errorf("%w: pk_list is required", ErrInvalidPKList)
	}

	// Bare scalar first.
	var single string
	if err := json.Unmarshal(req.PKList, &single); err == nil {
		id, err := uuid.Parse(single)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPKList, err)
		}
		return []uuid.UUID{id}, nil
	}

	var list []string
	if err := json.Unmarshal(req.PKList, &list); err != nil {
		return nil, fmt.Errorf("%w: expected an identifier or a list of identifiers", ErrInvalidPKList)
	}

	ids := make([]uuid.UUID, 0, len(list))
	for _, raw := range list {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPKList, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
