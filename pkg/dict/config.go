package dict

import (
	"encoding/binary"
	"encoding/hex"
	"flag"
	mathrand "math/rand/v2"

	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/memdex/memdex/pkg/util"
)

// ResizePolicy controls whether tables may grow and shrink.
type ResizePolicy string

const (
	// ResizeEnable allows resizing whenever the load factor reaches 1.
	ResizeEnable ResizePolicy = "enable"

	// ResizeAvoid grows a table only once its load factor exceeds the
	// force ratio, and holds ongoing rehash work while the two table sizes
	// are less than the force ratio apart. Used while a snapshot child
	// holds a copy-on-write view of memory.
	ResizeAvoid ResizePolicy = "avoid"

	// ResizeForbid blocks all resizing.
	ResizeForbid ResizePolicy = "forbid"
)

func (p ResizePolicy) valid() bool {
	return p == ResizeEnable || p == ResizeAvoid || p == ResizeForbid
}

// Config carries the knobs that were process-wide in the original system.
// They are injected at creation instead so tests and multi-tenant hosts can
// hold dicts with different settings.
type Config struct {
	ResizePolicy ResizePolicy `yaml:"resize_policy"`

	// HashSeed is the 128-bit seed returned by Seed for StringType, hex
	// encoded. When empty, every Seed call draws a fresh random seed.
	HashSeed string `yaml:"hash_seed"`

	// Logger receives rehash and resize events. Nop when nil.
	Logger log.Logger `yaml:"-"`

	// Rand is the uniform 64-bit source used by the sampling operations.
	// Defaults to the shared process source.
	Rand func() uint64 `yaml:"-"`
}

// RegisterFlagsAndApplyDefaults registers flags and sets defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar((*string)(&c.ResizePolicy), prefix+"resize-policy", string(ResizeEnable), "table resize policy (enable, avoid, forbid)")
	f.StringVar(&c.HashSeed, prefix+"hash-seed", "", "hex encoded 128-bit hash seed. empty picks a random seed")
}

func (c *Config) applyDefaults() {
	if c.ResizePolicy == "" {
		c.ResizePolicy = ResizeEnable
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Rand == nil {
		c.Rand = mathrand.Uint64
	}
}

func (c *Config) validate() error {
	if !c.ResizePolicy.valid() {
		return errors.Errorf("invalid resize policy %q", c.ResizePolicy)
	}
	if c.HashSeed != "" {
		b, err := hex.DecodeString(c.HashSeed)
		if err != nil {
			return errors.Wrap(err, "invalid hash seed")
		}
		if len(b) != 16 {
			return errors.Errorf("hash seed must be 16 bytes, got %d", len(b))
		}
	}
	return nil
}

// Seed returns the configured hash seed, generating a random one when the
// config leaves it empty.
func (c *Config) Seed() ([16]byte, error) {
	var s [16]byte
	if c.HashSeed == "" {
		return util.NewSeed(), nil
	}
	b, err := hex.DecodeString(c.HashSeed)
	if err != nil {
		return s, errors.Wrap(err, "invalid hash seed")
	}
	if len(b) != 16 {
		return s, errors.Errorf("hash seed must be 16 bytes, got %d", len(b))
	}
	copy(s[:], b)
	return s, nil
}

func seedKeys(seed [16]byte) (uint64, uint64) {
	return binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:])
}
