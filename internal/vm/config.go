package vm

// RuntimeConfig gathers the optional behaviour gowasm's runtime supports
// beyond the bare decode/instantiate/interpret pipeline, built with the
// same functional-options idiom the teacher's config.go uses
// (NewRuntimeConfig().WithXxx()...), per SPEC_FULL.md's ambient stack.
type RuntimeConfig struct {
	wasiEnabled bool
	maxSteps    uint64 // 0 means unbounded
}

// NewRuntimeConfig returns the default configuration: no WASI imports,
// no step limit.
func NewRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{}
}

// WithWASIEnabled records that the WASI slice (internal/wasi) should be
// linked, as reported by WASIEnabled. Instantiate does not read this
// setting: it links exactly the host imports its caller passes.
func (c *RuntimeConfig) WithWASIEnabled() *RuntimeConfig {
	c.wasiEnabled = true
	return c
}

// WithMaxSteps bounds the number of dispatched instructions before the
// interpreter stops with an InternalError (not a Trap), implementing spec.md §5's optional "host-imposed
// step/stack limit". Zero (the default) means unbounded.
func (c *RuntimeConfig) WithMaxSteps(n uint64) *RuntimeConfig {
	c.maxSteps = n
	return c
}

// WASIEnabled reports whether the WASI host-function slice should be
// linked in.
func (c *RuntimeConfig) WASIEnabled() bool { return c.wasiEnabled }

// MaxSteps returns the configured step limit, or 0 for unbounded.
func (c *RuntimeConfig) MaxSteps() uint64 { return c.maxSteps }
