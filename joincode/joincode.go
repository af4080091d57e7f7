// Package joincode issues short, shareable codes that gate entry to private rooms.
package joincode

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"
)

// Alphabet leaves out characters that are easy to misread (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultLength     = 6
	DefaultMaxRetries = 3
	DefaultHighWater  = 10000
	DefaultKeep       = 5000
)

type Option func(*Generator)

func WithLength(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.length = n
		}
	}
}

// WithMaxRetries bounds the random attempts before the counter fallback is used.
func WithMaxRetries(n int) Option {
	return func(g *Generator) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// WithHighWater sets the active-set size that triggers a trim and how many
// of the most recent codes survive it.
func WithHighWater(highWater, keep int) Option {
	return func(g *Generator) {
		if highWater > 0 && keep > 0 && keep <= highWater {
			g.highWater = highWater
			g.keep = keep
		}
	}
}

// WithRand replaces the random source. Tests use it to force collisions.
func WithRand(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.rand = r
		}
	}
}

// Generator hands out join codes that are unique among the currently active set.
type Generator struct {
	mu         sync.Mutex
	length     int
	maxRetries int
	highWater  int
	keep       int
	rand       io.Reader

	active map[string]uint64 // code -> issue sequence
	order  []issued          // issue order, may hold released or reissued codes
	seq    uint64
	clock  uint64 // fallback counter, seeded from wall clock
}

type issued struct {
	code string
	seq  uint64
}

func New(opts ...Option) *Generator {
	g := &Generator{
		length:     DefaultLength,
		maxRetries: DefaultMaxRetries,
		highWater:  DefaultHighWater,
		keep:       DefaultKeep,
		rand:       rand.Reader,
		active:     make(map[string]uint64),
		clock:      uint64(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh code and marks it active.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	for attempt := 0; attempt < g.maxRetries; attempt++ {
		code, err := g.randomCode()
		if err != nil {
			break
		}
		if _, taken := g.active[code]; !taken {
			g.add(code)
			return code
		}
	}

	code := g.fallbackCode()
	g.add(code)
	return code
}

// Release makes a code available again. Unknown codes are ignored.
func (g *Generator) Release(code string) {
	code = normalize(code)
	if code == "" {
		return
	}
	g.mu.Lock()
	delete(g.active, code)
	g.mu.Unlock()
}

// IsActive reports whether the code is currently issued.
func (g *Generator) IsActive(code string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[normalize(code)]
	return ok
}

func (g *Generator) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

// Valid reports whether code has the configured length and only uses Alphabet.
func (g *Generator) Valid(code string) bool {
	if len(code) != g.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

func (g *Generator) randomCode() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(buf), nil
}

// fallbackCode encodes a strictly increasing counter, so it cannot repeat
// within the process unless the counter wraps the code space.
func (g *Generator) fallbackCode() string {
	for {
		g.clock++
		n := g.clock
		buf := make([]byte, g.length)
		for i := g.length - 1; i >= 0; i-- {
			buf[i] = Alphabet[n%uint64(len(Alphabet))]
			n /= uint64(len(Alphabet))
		}
		code := string(buf)
		if _, taken := g.active[code]; !taken {
			return code
		}
	}
}

func (g *Generator) add(code string) {
	g.seq++
	g.active[code] = g.seq
	g.order = append(g.order, issued{code: code, seq: g.seq})
	if len(g.active) > g.highWater {
		g.trim()
	}
	if len(g.order) > 2*g.highWater {
		g.compact()
	}
}

// live reports whether the log entry still describes an active code.
// A code released and reissued appears twice in the log; only the entry
// carrying its current sequence counts.
func (g *Generator) live(e issued) bool {
	seq, ok := g.active[e.code]
	return ok && seq == e.seq
}

// trim keeps only the g.keep most recently issued active codes.
func (g *Generator) trim() {
	kept := make([]issued, 0, g.keep)
	for i := len(g.order) - 1; i >= 0 && len(kept) < g.keep; i-- {
		if g.live(g.order[i]) {
			kept = append(kept, g.order[i])
		}
	}
	active := make(map[string]uint64, len(kept))
	order := make([]issued, len(kept))
	for i, e := range kept {
		active[e.code] = e.seq
		order[len(kept)-1-i] = e
	}
	g.active = active
	g.order = order
}

func (g *Generator) compact() {
	order := make([]issued, 0, len(g.active))
	for _, e := range g.order {
		if g.live(e) {
			order = append(order, e)
		}
	}
	g.order = order
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
