package boltstore

// Bucket name constants for bbolt storage.
var (
	bucketMeta    = []byte("meta")
	bucketThings  = []byte("things")
	bucketPlayers = []byte("players")
)

// Meta key constants.
var (
	keyVersion = []byte("version")
	keyRoot    = []byte("root")
)

// formatVersion is bumped whenever thingRecord changes incompatibly.
const formatVersion = "1"

func thingKey(id string) []byte { return []byte(id) }
