package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// IDGenerator yields "<prefix>-1", "<prefix>-2", ... and is safe for concurrent use.
type IDGenerator struct {
	prefix  string
	counter atomic.Uint64
}

// NewIDGenerator constructs a generator. An empty prefix becomes "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier.
func (g *IDGenerator) Next() string {
	return g.prefix + "-" + strconv.FormatUint(g.counter.Add(1), 10)
}

// NextFunc exposes Next for injection into services.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued reports how many identifiers have been handed out.
func (g *IDGenerator) Issued() uint64 {
	return g.counter.Load()
}
