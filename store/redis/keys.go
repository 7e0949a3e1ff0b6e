package redis

import "strconv"

// Key prefixes for primary entity storage.
const (
	prefixMessage = "stash:msg:"
	prefixGroup   = "stash:grp:"
)

// Key prefixes for per-region indexes.
const (
	sMessageRegion = "stash:s:msg:" // + region; set of message IDs
	zGroupRegion   = "stash:z:grp:" // + region; correlation IDs scored by creation time
)

// entityKey returns the primary key for an entity within a region. The region
// is length-prefixed so that neither part can bleed into the other.
func entityKey(prefix, region, id string) string {
	return prefix + strconv.Itoa(len(region)) + ":" + region + ":" + id
}

// indexKey returns the key of a per-region index.
func indexKey(prefix, region string) string {
	return prefix + region
}
