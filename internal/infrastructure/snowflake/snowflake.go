package snowflake

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hilthontt/chorus/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	nodeBits      = 10
	sequenceBits  = 12
	timestampBits = 41

	MaxNodeID    = 1<<nodeBits - 1
	maxSequence  = 1<<sequenceBits - 1
	maxTimestamp = 1<<timestampBits - 1

	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits

	defaultMaxBackwardDrift = 10 * time.Millisecond
)

var DefaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	ErrClockMovedBackwards = errors.New("clock moved backwards")
	ErrTimestampOverflow   = errors.New("timestamp exceeds 41 bits")
)

// ID layout: 41 bits of milliseconds since the epoch, 10 bits of node id,
// 12 bits of per-millisecond sequence.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id ID) Timestamp() int64 { return int64(id >> timestampShift) }
func (id ID) Node() int64      { return int64(id>>nodeShift) & MaxNodeID }
func (id ID) Sequence() int64  { return int64(id) & maxSequence }

// Time converts the embedded timestamp back to wall time.
func (id ID) Time(epoch time.Time) time.Time {
	return epoch.Add(time.Duration(id.Timestamp()) * time.Millisecond)
}

func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: identifier %q", domain.ErrInvalidInput, s)
	}
	return ID(v), nil
}

type Options struct {
	NodeID int64
	Epoch  time.Time
	Clock  clock.Clock
	// MaxBackwardDrift is how far the clock may step back before Next fails
	// instead of waiting for it to catch up. Negative means never wait.
	MaxBackwardDrift time.Duration
	Issued           prometheus.Counter
}

type Generator struct {
	mu       sync.Mutex
	clock    clock.Clock
	epochMS  int64
	nodeID   int64
	lastMS   int64
	sequence int64
	maxDrift int64
	issued   prometheus.Counter
}

func New(opts Options) (*Generator, error) {
	if opts.NodeID < 0 || opts.NodeID > MaxNodeID {
		return nil, &domain.ConfigurationError{
			Field:  "node.id",
			Reason: fmt.Sprintf("%d is outside [0, %d]", opts.NodeID, MaxNodeID),
		}
	}
	if opts.Epoch.IsZero() {
		opts.Epoch = DefaultEpoch
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Clock.Now().Before(opts.Epoch) {
		return nil, &domain.ConfigurationError{Field: "epoch", Reason: "epoch is in the future"}
	}

	drift := opts.MaxBackwardDrift
	switch {
	case drift == 0:
		drift = defaultMaxBackwardDrift
	case drift < 0:
		drift = 0
	}

	return &Generator{
		clock:    opts.Clock,
		epochMS:  opts.Epoch.UnixMilli(),
		nodeID:   opts.NodeID,
		lastMS:   -1,
		maxDrift: drift.Milliseconds(),
		issued:   opts.Issued,
	}, nil
}

func (g *Generator) NodeID() int64 { return g.nodeID }

func (g *Generator) millis() int64 {
	return g.clock.Now().UnixMilli() - g.epochMS
}

// waitUntil spins until the clock reaches target. Callers hold g.mu.
func (g *Generator) waitUntil(target int64) int64 {
	now := g.millis()
	for now < target {
		runtime.Gosched()
		now = g.millis()
	}
	return now
}

// Next returns the next identifier. It blocks for at most one millisecond on
// sequence exhaustion, or up to MaxBackwardDrift after a clock step back.
func (g *Generator) Next() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.millis()
	if now < g.lastMS {
		behind := g.lastMS - now
		if behind > g.maxDrift {
			return 0, fmt.Errorf("%w by %dms", ErrClockMovedBackwards, behind)
		}
		now = g.waitUntil(g.lastMS)
	}

	if now == g.lastMS {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			now = g.waitUntil(g.lastMS + 1)
		}
	} else {
		g.sequence = 0
	}

	if now > maxTimestamp {
		return 0, ErrTimestampOverflow
	}
	g.lastMS = now

	if g.issued != nil {
		g.issued.Inc()
	}

	return ID(now<<timestampShift | g.nodeID<<nodeShift | g.sequence), nil
}

// NextString is the string-encoded form handed to insert paths.
func (g *Generator) NextString() (string, error) {
	id, err := g.Next()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
