package testutil

import (
	"github.com/calvinalkan/recdb/pkg/recdb"
)

// OpGenConfig configures the operation generator. Rates are percentages;
// whatever remains after the listed rates goes to reopen.
type OpGenConfig struct {
	CreateRate int
	ReadRate   int
	UpdateRate int
	DeleteRate int
	FindRate   int

	// InvalidRowRate is the percentage of row references that point at a
	// negative row, past the end or at an offset that overflows.
	InvalidRowRate int

	// AbsentRate is the percentage of values left Absent.
	AbsentRate int
}

// DefaultOpGenConfig returns a balanced configuration.
func DefaultOpGenConfig() OpGenConfig {
	return OpGenConfig{
		CreateRate:     30,
		ReadRate:       15,
		UpdateRate:     20,
		DeleteRate:     15,
		FindRate:       17,
		InvalidRowRate: 10,
		AbsentRate:     30,
	}
}

// OpGenerator generates deterministic operations from a byte stream.
type OpGenerator struct {
	stream  *ByteStream
	config  OpGenConfig
	model   *Model
	lengths []int
}

// NewOpGenerator creates a generator for records of schema.
func NewOpGenerator(fuzzBytes []byte, model *Model, schema recdb.Schema, cfg OpGenConfig) *OpGenerator {
	lengths := make([]int, len(schema.Fields))
	for i, f := range schema.Fields {
		lengths[i] = f.Length
	}

	return &OpGenerator{
		stream:  NewByteStream(fuzzBytes),
		config:  cfg,
		model:   model,
		lengths: lengths,
	}
}

// HasMore reports whether more operations can be generated.
func (g *OpGenerator) HasMore() bool {
	return g.stream.HasMore()
}

// NextOp generates the next operation.
func (g *OpGenerator) NextOp() Op {
	choice := int(g.stream.NextByte()) % 100

	cumulative := 0

	cumulative += g.config.CreateRate
	if choice < cumulative {
		return OpCreate{Values: g.values(true)}
	}

	cumulative += g.config.ReadRate
	if choice < cumulative {
		return OpRead{Row: g.row()}
	}

	cumulative += g.config.UpdateRate
	if choice < cumulative {
		return OpUpdate{Row: g.row(), Values: g.values(true)}
	}

	cumulative += g.config.DeleteRate
	if choice < cumulative {
		return OpDelete{Row: g.row()}
	}

	cumulative += g.config.FindRate
	if choice < cumulative {
		return OpFind{Criteria: g.values(false)}
	}

	return OpReopen{}
}

// values returns one value per field. Find criteria are kept short so they
// act as prefixes.
func (g *OpGenerator) values(full bool) []recdb.Value {
	out := make([]recdb.Value, len(g.lengths))

	for i, length := range g.lengths {
		if g.stream.NextInt(100) < g.config.AbsentRate {
			continue
		}

		// Overshoot the length so truncation is exercised.
		maxLen := length + 2
		if !full {
			maxLen = 2
		}

		out[i] = recdb.Some(g.stream.NextField(maxLen))
	}

	return out
}

func (g *OpGenerator) row() int64 {
	n := g.model.Rows()

	if n == 0 || g.stream.NextInt(100) < g.config.InvalidRowRate {
		if g.stream.NextBool() {
			return -1 - int64(g.stream.NextInt(3))
		}

		// A row whose byte offset overflows int64.
		if g.stream.NextInt(4) == 0 {
			return 1 << 61
		}

		return n + int64(g.stream.NextInt(3))
	}

	return int64(g.stream.NextInt(int(n)))
}
