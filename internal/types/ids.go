package types

import (
	"time"

	"github.com/google/uuid"
)

// NewRecordID generates a UUIDv7 record identifier.
// Time-ordered IDs keep inserts of one import batch clustered.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRecordID() RecordID {
	return RecordID(uuid.Must(uuid.NewV7()).String())
}

// NewCategoryID generates a UUIDv7 category identifier.
func NewCategoryID() CategoryID {
	return CategoryID(uuid.Must(uuid.NewV7()).String())
}

// NewCollectionID generates a UUIDv7 collection identifier.
func NewCollectionID() CollectionID {
	return CollectionID(uuid.Must(uuid.NewV7()).String())
}

// NewRunID generates a UUIDv7 run identifier.
func NewRunID() RunID {
	return RunID(uuid.Must(uuid.NewV7()).String())
}

// ParseRecordID validates and converts a string to RecordID.
// Rejects malformed UUIDs so ad-hoc selections cannot smuggle arbitrary text.
func ParseRecordID(s string) (RecordID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RecordID(s), nil
}

// RunIDTime returns the start time embedded in a run id. Run ids are
// UUIDv7, so the time needs no separate field in logs. Anything that is not
// a version 7 UUID yields the zero time.
func RunIDTime(id RunID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil || u.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
