package testdata

import (
	"math/rand"
	"sync"
	"time"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

const (
	maxInteger      = 1000
	maxStringLength = 8
	alphabet        = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator produces random parameter values
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a new instance of Generator. A nil source seeds from
// the current time.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{rng: rand.New(src)}
}

// Value returns a random value for the parameter. Enumerations take
// precedence over the declared type; parameters without a usable type get nil.
func (g *Generator) Value(param types.ParameterDescriptor) any {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(param.Enum) > 0 {
		return param.Enum[g.rng.Intn(len(param.Enum))]
	}

	switch param.Type {
	case types.TypeInteger:
		return g.rng.Intn(maxInteger)
	case types.TypeString:
		return g.randomString()
	case types.TypeBoolean:
		return g.rng.Intn(2) == 1
	default:
		return nil
	}
}

// Fill assigns a random value to every parameter
func (g *Generator) Fill(params []types.ParameterDescriptor) []types.ParameterValue {
	values := make([]types.ParameterValue, 0, len(params))
	for _, param := range params {
		values = append(values, types.ParameterValue{
			ParameterDescriptor: param,
			Value:               g.Value(param),
		})
	}
	return values
}

func (g *Generator) randomString() string {
	n := 1 + g.rng.Intn(maxStringLength)
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[g.rng.Intn(len(alphabet))]
	}
	return string(b)
}
