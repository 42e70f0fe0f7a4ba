package event

import (
	"encoding/hex"
	"hash"

	"github.com/zeebo/blake3"
)

// Digester hashes an event sequence one event at a time.
type Digester struct {
	h hash.Hash
}

// NewDigester returns an empty digester.
func NewDigester() *Digester {
	return &Digester{h: blake3.New()}
}

// Add hashes e and returns its JSON envelope.
func (d *Digester) Add(e Event) ([]byte, error) {
	data, err := Marshal(e)
	if err != nil {
		return nil, err
	}
	d.h.Write(data)
	d.h.Write([]byte{'\n'})
	return data, nil
}

// Sum returns the digest of the events added so far as a hex string.
func (d *Digester) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Digest computes the BLAKE3 hash of an event sequence and returns it as a
// hex string. Each event contributes its JSON envelope followed by a newline.
func Digest(events []Event) (string, error) {
	d := NewDigester()
	for _, e := range events {
		if _, err := d.Add(e); err != nil {
			return "", err
		}
	}
	return d.Sum(), nil
}

// EventDigest returns the BLAKE3 hash of a single event.
func EventDigest(e Event) (string, error) {
	data, err := Marshal(e)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
