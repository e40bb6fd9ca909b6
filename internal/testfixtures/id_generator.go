package testfixtures

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator hands out reproducible identifiers. In prefix mode ids read
// "<prefix>-<n>"; in UUID mode they are name-based UUIDs shaped like the
// uuid.NewString ids the server assigns.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	space   uuid.UUID
	uuids   bool
	counter uint64
}

// NewIDGenerator yields "<prefix>-1", "<prefix>-2", ... An empty prefix means "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// NewUUIDGenerator yields SHA-1 UUIDs derived from namespace and a counter,
// so two generators with the same namespace produce the same sequence.
func NewUUIDGenerator(namespace string) *IDGenerator {
	return &IDGenerator{space: uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace)), uuids: true}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	if g.uuids {
		return uuid.NewSHA1(g.space, []byte(strconv.FormatUint(g.counter, 10))).String()
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc exposes Next for injection as an idGenerator.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Reset restarts the sequence.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
