package badger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/farid-asgarli/ws-cloud/pkg/metadata"
)

// Serialization Strategy
// ======================
//
// BadgerDB stores data as raw bytes, so we need to serialize Go structs before
// storing and deserialize when reading. We use different strategies based on
// data type complexity:
//
// 1. JSON Encoding (Complex Types)
//    - Nodes, access log entries
//    - Pros: Human-readable, flexible schema evolution, easy debugging
//    - Cons: Larger size, slower than binary
//
// 2. Binary Encoding (Simple Types)
//    - Blob refcounts (uint64 big-endian), uuid index values (16 raw bytes)
//    - Pros: Compact, fast
//    - Cons: Not human-readable, rigid schema

// encodeNode serializes a Node to JSON bytes.
func encodeNode(node *metadata.Node) ([]byte, error) {
	bytes, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node: %w", err)
	}
	return bytes, nil
}

// decodeNode deserializes a Node from JSON bytes.
func decodeNode(bytes []byte) (*metadata.Node, error) {
	var node metadata.Node
	if err := json.Unmarshal(bytes, &node); err != nil {
		return nil, fmt.Errorf("failed to decode node: %w", err)
	}
	return &node, nil
}

// encodeAccessEntry serializes an AccessEntry to JSON bytes.
func encodeAccessEntry(entry *metadata.AccessEntry) ([]byte, error) {
	bytes, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode access entry: %w", err)
	}
	return bytes, nil
}

// decodeAccessEntry deserializes an AccessEntry from JSON bytes.
func decodeAccessEntry(bytes []byte) (*metadata.AccessEntry, error) {
	var entry metadata.AccessEntry
	if err := json.Unmarshal(bytes, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode access entry: %w", err)
	}
	return &entry, nil
}

// encodeUUID serializes a uuid to its raw 16 bytes for index values.
func encodeUUID(id uuid.UUID) []byte {
	bytes := make([]byte, 16)
	copy(bytes, id[:])
	return bytes
}

// decodeUUID deserializes a uuid from raw 16 bytes.
func decodeUUID(bytes []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(bytes)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to decode uuid: %w", err)
	}
	return id, nil
}

// encodeUint64 serializes a uint64 to 8 bytes using big-endian encoding.
//
// Big-endian is chosen for consistency with network byte order and to make
// values comparable in lexicographic ordering (which BadgerDB uses for keys).
func encodeUint64(value uint64) []byte {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, value)
	return bytes
}

// decodeUint64 deserializes a uint64 from 8 bytes using big-endian encoding.
func decodeUint64(bytes []byte) (uint64, error) {
	if len(bytes) != 8 {
		return 0, fmt.Errorf("invalid uint64 bytes: expected 8 bytes, got %d", len(bytes))
	}
	return binary.BigEndian.Uint64(bytes), nil
}
