package nats

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// Key layout inside the bucket:
//
//	<region>.msg.<message id>
//	<region>.grp.<correlation id>
//
// Region and correlation ID are free-form, so they are base64url encoded to
// stay within the characters JetStream allows in keys.
const (
	tokenMessage = "msg"
	tokenGroup   = "grp"
)

func encodeToken(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func messageKey(region string, id uuid.UUID) string {
	return encodeToken(region) + "." + tokenMessage + "." + id.String()
}

func groupKey(region, correlationID string) string {
	return encodeToken(region) + "." + tokenGroup + "." + encodeToken(correlationID)
}

// regionFilter returns the subject filter matching every key of kind in region.
func regionFilter(region, kind string) string {
	return encodeToken(region) + "." + kind + ".*"
}
