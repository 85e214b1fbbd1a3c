package ravijit

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/ravilang/ravijit/internal/native"
)

// Config controls the JIT state created by Initialize, with the defaults as NewConfig.
//
// Every With method returns a copy, so a Config can be shared and specialized safely.
type Config struct {
	enabled      bool
	autoMode     bool
	minCodeSize  uint32
	minExecCount uint32
	optLevel     uint8
	validation   bool
	verbosity    uint8
	backend      string
	diagnostics  io.Writer

	// newBackend overrides the backend lookup by name. Used in tests.
	newBackend native.Factory
	// generator overrides the default code generator. Used in tests.
	generator CodeGenerator
}

// defaultConfig helps avoid copy/pasting the wrong defaults.
var defaultConfig = &Config{
	enabled:      true,
	autoMode:     false,
	minCodeSize:  150,
	minExecCount: 50,
	optLevel:     1,
	diagnostics:  io.Discard,
}

// clone ensures all fields are copied even if nil.
func (c *Config) clone() *Config {
	ret := *c
	return &ret
}

// NewConfig returns the default configuration: enabled, manual mode, a minimum
// code size of 150 instructions, a minimum execution count of 50 and
// optimization level 1, using the most preferred backend compiled in.
func NewConfig() *Config {
	return defaultConfig.clone()
}

// WithEnabled turns compilation on or off. Defaults to true.
func (c *Config) WithEnabled(enabled bool) *Config {
	ret := c.clone()
	ret.enabled = enabled
	return ret
}

// WithAutoMode makes the interpreter compile functions by itself once they
// cross one of the thresholds. Defaults to false, which only compiles on request.
func (c *Config) WithAutoMode(autoMode bool) *Config {
	ret := c.clone()
	ret.autoMode = autoMode
	return ret
}

// WithMinCodeSize sets the instruction count above which a function is
// compiled on its first call in auto mode. Defaults to 150.
func (c *Config) WithMinCodeSize(minCodeSize uint32) *Config {
	ret := c.clone()
	ret.minCodeSize = minCodeSize
	return ret
}

// WithMinExecCount sets how many calls a function needs before it is compiled
// in auto mode. Defaults to 50.
func (c *Config) WithMinExecCount(minExecCount uint32) *Config {
	ret := c.clone()
	ret.minExecCount = minExecCount
	return ret
}

// WithOptLevel sets the optimization level of the code generator. Defaults to 1.
//
// Note: This does not change how the native backend optimizes, which is always
// at its most aggressive level.
func (c *Config) WithOptLevel(optLevel uint8) *Config {
	ret := c.clone()
	ret.optLevel = optLevel
	return ret
}

// WithValidation checks generated programs before handing them to the backend.
// Defaults to false.
func (c *Config) WithValidation(validation bool) *Config {
	ret := c.clone()
	ret.validation = validation
	return ret
}

// WithVerbosity sets how much is written to the diagnostics writer. Zero
// disables diagnostics, one reports failures, two reports every compilation.
// Defaults to zero.
func (c *Config) WithVerbosity(verbosity uint8) *Config {
	ret := c.clone()
	ret.verbosity = verbosity
	return ret
}

// WithBackend selects the native backend by registered name. Defaults to the
// most preferred one compiled in. See native.Backends.
func (c *Config) WithBackend(name string) *Config {
	ret := c.clone()
	ret.backend = name
	return ret
}

// WithDiagnostics configures where diagnostics are written. Defaults to io.Discard.
func (c *Config) WithDiagnostics(w io.Writer) *Config {
	if w == nil {
		w = io.Discard
	}
	ret := c.clone()
	ret.diagnostics = w
	return ret
}

// fileConfig is the TOML layout read by ParseConfig. Pointers distinguish
// absent keys from zero values.
type fileConfig struct {
	JIT struct {
		Enabled      *bool   `toml:"enabled"`
		Auto         *bool   `toml:"auto"`
		MinCodeSize  *uint32 `toml:"min_code_size"`
		MinExecCount *uint32 `toml:"min_exec_count"`
		OptLevel     *uint8  `toml:"opt_level"`
		Validation   *bool   `toml:"validation"`
		Verbosity    *uint8  `toml:"verbosity"`
		Backend      *string `toml:"backend"`
	} `toml:"jit"`
}

// ParseConfig reads a TOML document with a [jit] table on top of NewConfig.
// Keys not present keep their defaults, unknown keys are an error.
//
// For example:
//
//	[jit]
//	auto = true
//	min_exec_count = 10
func ParseConfig(data []byte) (*Config, error) {
	var fc fileConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ret := NewConfig()
	j := fc.JIT
	if j.Enabled != nil {
		ret.enabled = *j.Enabled
	}
	if j.Auto != nil {
		ret.autoMode = *j.Auto
	}
	if j.MinCodeSize != nil {
		ret.minCodeSize = *j.MinCodeSize
	}
	if j.MinExecCount != nil {
		ret.minExecCount = *j.MinExecCount
	}
	if j.OptLevel != nil {
		ret.optLevel = *j.OptLevel
	}
	if j.Validation != nil {
		ret.validation = *j.Validation
	}
	if j.Verbosity != nil {
		ret.verbosity = *j.Verbosity
	}
	if j.Backend != nil {
		ret.backend = *j.Backend
	}
	return ret, nil
}

// LoadConfig is ParseConfig on the contents of the file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ret, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ret, nil
}
