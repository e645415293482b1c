package search

import (
	"time"

	"github.com/Aman-CERP/notebrain/internal/config"
)

// Config configures the Retriever.
type Config struct {
	// DefaultK is used when a query leaves K unset (default: 20).
	DefaultK int

	// MaxK caps K (default: 100).
	MaxK int

	// Overfetch multiplies K for each path's candidate list (default: 3).
	Overfetch int

	// Timeout bounds each path, embedding included (default: 5s).
	Timeout time.Duration

	// Fusion is the default fusion mode.
	Fusion        string
	RRFConstant   int
	VectorWeight  float64
	LexicalWeight float64

	// LinkExpansion appends chunks of linked notes after the fused results.
	LinkExpansion     bool
	LinkExpansionHops int
	ExpansionFraction float64
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultK:          20,
		MaxK:              100,
		Overfetch:         3,
		Timeout:           5 * time.Second,
		Fusion:            FusionRRF,
		RRFConstant:       DefaultRRFConstant,
		VectorWeight:      DefaultVectorWeight,
		LexicalWeight:     DefaultLexicalWeight,
		LinkExpansion:     true,
		LinkExpansionHops: 1,
		ExpansionFraction: 0.25,
	}
}

// ConfigFrom maps the retrieval section of the vault configuration.
func ConfigFrom(rc config.RetrievalConfig) Config {
	cfg := DefaultConfig()
	cfg.DefaultK = rc.MaxResults
	cfg.Overfetch = rc.Overfetch
	cfg.Timeout = config.Duration(rc.Timeout, cfg.Timeout)
	cfg.Fusion = rc.Fusion
	cfg.RRFConstant = rc.RRFConstant
	cfg.VectorWeight = rc.VectorWeight
	cfg.LexicalWeight = rc.LexicalWeight
	cfg.LinkExpansion = rc.LinkExpansion
	cfg.LinkExpansionHops = rc.LinkExpansionHops
	cfg.ExpansionFraction = rc.ExpansionFraction
	return cfg.withDefaults()
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultK <= 0 {
		c.DefaultK = d.DefaultK
	}
	if c.MaxK <= 0 {
		c.MaxK = d.MaxK
	}
	if c.DefaultK > c.MaxK {
		c.MaxK = c.DefaultK
	}
	if c.Overfetch < 1 {
		c.Overfetch = d.Overfetch
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Fusion == "" {
		c.Fusion = d.Fusion
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = d.RRFConstant
	}
	return c
}

// limit resolves the K of a query.
func (c Config) limit(k int) int {
	if k <= 0 {
		k = c.DefaultK
	}
	if k > c.MaxK {
		k = c.MaxK
	}
	return k
}

// expansionCap is the most results link expansion may add for k.
func (c Config) expansionCap(k int) int {
	return int(c.ExpansionFraction * float64(k))
}
