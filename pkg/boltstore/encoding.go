package boltstore

import (
	"bytes"
	"encoding/gob"
	"strings"
)

// thingRecord is the stored form of one Thing. Children are stored as their
// own records and referenced by ID.
type thingRecord struct {
	ID          string
	Name        string
	Description string
	Parent      string
	Children    []string
	Behaviors   []behaviorRecord
}

// behaviorRecord holds one persistent behavior's opaque state.
type behaviorRecord struct {
	Kind string
	Data []byte
}

// playerRecord indexes a player by lower-cased name.
type playerRecord struct {
	ID       string
	Location string
}

func encodeRecord(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeThing(data []byte) (*thingRecord, error) {
	var rec thingRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodePlayer(data []byte) (*playerRecord, error) {
	var rec playerRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func playerKey(name string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(name)))
}
