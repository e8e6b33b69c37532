// Package ident converts record identifiers between their wire form (a
// 24 character lowercase hex string) and the storage key used by every
// repository backend.
package ident

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KeyLength is the length of a canonical identifier string.
const KeyLength = 24

// ErrInvalidIdentifier is returned for any string that is not a canonical key.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// New generates a fresh key. Keys generated by one process sort in creation order.
func New() primitive.ObjectID {
	return primitive.NewObjectID()
}

// Parse validates raw and converts it to a storage key.
func Parse(raw string) (primitive.ObjectID, error) {
	if !canonical(raw) {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	return id, nil
}

// ParseAll converts every element of raws. A nil or empty input yields an
// empty, non-nil slice.
func ParseAll(raws []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(raws))
	for _, raw := range raws {
		id, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseOptional converts raw when present.
func ParseOptional(raw *string) (*primitive.ObjectID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Hex returns the wire form of id.
func Hex(id primitive.ObjectID) string {
	return id.Hex()
}

// HexAll converts every key to its wire form, never returning nil.
func HexAll(ids []primitive.ObjectID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Hex())
	}
	return out
}

// HexOptional returns nil for a nil key.
func HexOptional(id *primitive.ObjectID) *string {
	if id == nil {
		return nil
	}
	s := id.Hex()
	return &s
}

// Unique returns ids with duplicates removed, keeping first occurrences.
func Unique(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func canonical(raw string) bool {
	if len(raw) != KeyLength {
		return false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
