package service

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUIDGenerator mints random version 4 identifiers.
type UUIDGenerator struct{}

func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SequentialGenerator mints prefix-1, prefix-2, ... and is used where
// identifiers must be predictable.
type SequentialGenerator struct {
	prefix string
	next   atomic.Uint64
}

func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

func (g *SequentialGenerator) NewID() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.next.Add(1))
}
