package message

import "github.com/google/uuid"

// Record is the persisted form of a Message: the message with its stamped
// headers, bound to a region, plus the bookkeeping a backend needs for
// compare-and-swap writes.
type Record struct {
	// Region is the partition the record lives in. (Region, Message.ID) is unique.
	Region string

	// Message is the stored message, reserved headers stamped.
	Message *Message

	// Fingerprint is the content digest of Message (see Fingerprint).
	Fingerprint string

	// Version is the backend's compare-and-swap token. Backends assign it on
	// create and advance it on every successful update.
	Version uint64

	// UpdatedAt is the unix-millisecond time of the last write.
	UpdatedAt int64
}

// ID returns the ID of the stored message.
func (r *Record) ID() uuid.UUID {
	return r.Message.ID
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Message = r.Message.Clone()
	return &c
}
