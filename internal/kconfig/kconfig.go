// Package kconfig holds build-time constants and environment-driven
// feature flags shared by the compiler, VM, and CLI driver.
package kconfig

import "os"

// Version is the current Kaubo core version.
// Set at build time via -ldflags or left at this default.
var Version = "0.1.0"

// Built-in shape IDs, reserved for primitive value kinds (spec.md §3 Shape table).
const (
	ShapeInt     = 0
	ShapeFloat   = 1
	ShapeString  = 2
	ShapeList    = 3
	ShapeJson    = 4
	ShapeClosure = 5
	ShapeModule  = 6

	// FirstUserShapeID is the first shape ID available to user-defined structs.
	FirstUserShapeID = 100
)

// Standard-library module export numbering (spec.md §6.3,
// compiler's find_std_module_shape_id).
const (
	StdPrint            = 0
	StdAssert           = 1
	StdType             = 2
	StdToString         = 3
	StdSqrt             = 4
	StdSin              = 5
	StdCos              = 6
	StdFloor            = 7
	StdCeil             = 8
	StdPI               = 9
	StdE                = 10
	StdCreateCoroutine  = 11
	StdResume           = 12
	StdCoroutineStatus  = 13
)

// StdModuleName is the fixed name the stdlib module is installed under.
const StdModuleName = "std"

// TraceEnabled is the default of cmd/kaubo's -trace flag, which prints
// each example's disassembly before running it; the VM itself does not
// read it. It is the Go equivalent of the original implementation's
// logger-backed trace dumps (next_kaubo/kaubo-core/src/runtime/bytecode/chunk.rs).
var TraceEnabled = os.Getenv("KAUBO_TRACE") != ""

// Sizing knobs for the VM's operand stack and call-frame vector, mirrored
// from the teacher's InitialStackSize/InitialFrameCount/MaxFrameCount style.
const (
	InitialStackSize = 2048
	InitialFrameCount = 256
	StackGrowthIncrement = 1024
	FrameGrowthIncrement = 128
	MaxFrameCount  = 4096
	MaxStackSize   = 1 << 20
)
