package vm

import (
	"math"
	"math/bits"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/moremath"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

// execNumeric dispatches every opcode with no control-flow/memory/local
// meaning: comparisons, unary/binary arithmetic, conversions, and the
// sign-extension operators, per spec.md §4.3's numeric-semantics table.
// Each case pops its operands and pushes exactly one result, matching
// the Wasm type rules the decoder/validator guarantee hold (spec.md §3's
// "operand stack is homogeneously typed" invariant: invalid modules are
// out of scope, so this never needs to check value kinds itself).
func (ip *Interpreter) execNumeric(op wasm.Opcode) error {
	switch op {
	// i32 comparisons
	case wasm.OpcodeI32Eqz:
		ip.unaryI32(func(a int32) int32 { return b2i(a == 0) })
	case wasm.OpcodeI32Eq:
		ip.binaryI32Bool(func(a, b int32) bool { return a == b })
	case wasm.OpcodeI32Ne:
		ip.binaryI32Bool(func(a, b int32) bool { return a != b })
	case wasm.OpcodeI32LtS:
		ip.binaryI32Bool(func(a, b int32) bool { return a < b })
	case wasm.OpcodeI32LtU:
		ip.binaryU32Bool(func(a, b uint32) bool { return a < b })
	case wasm.OpcodeI32GtS:
		ip.binaryI32Bool(func(a, b int32) bool { return a > b })
	case wasm.OpcodeI32GtU:
		ip.binaryU32Bool(func(a, b uint32) bool { return a > b })
	case wasm.OpcodeI32LeS:
		ip.binaryI32Bool(func(a, b int32) bool { return a <= b })
	case wasm.OpcodeI32LeU:
		ip.binaryU32Bool(func(a, b uint32) bool { return a <= b })
	case wasm.OpcodeI32GeS:
		ip.binaryI32Bool(func(a, b int32) bool { return a >= b })
	case wasm.OpcodeI32GeU:
		ip.binaryU32Bool(func(a, b uint32) bool { return a >= b })

	// i64 comparisons
	case wasm.OpcodeI64Eqz:
		ip.unaryI64ToI32(func(a int64) int32 { return b2i(a == 0) })
	case wasm.OpcodeI64Eq:
		ip.binaryI64Bool(func(a, b int64) bool { return a == b })
	case wasm.OpcodeI64Ne:
		ip.binaryI64Bool(func(a, b int64) bool { return a != b })
	case wasm.OpcodeI64LtS:
		ip.binaryI64Bool(func(a, b int64) bool { return a < b })
	case wasm.OpcodeI64LtU:
		ip.binaryU64Bool(func(a, b uint64) bool { return a < b })
	case wasm.OpcodeI64GtS:
		ip.binaryI64Bool(func(a, b int64) bool { return a > b })
	case wasm.OpcodeI64GtU:
		ip.binaryU64Bool(func(a, b uint64) bool { return a > b })
	case wasm.OpcodeI64LeS:
		ip.binaryI64Bool(func(a, b int64) bool { return a <= b })
	case wasm.OpcodeI64LeU:
		ip.binaryU64Bool(func(a, b uint64) bool { return a <= b })
	case wasm.OpcodeI64GeS:
		ip.binaryI64Bool(func(a, b int64) bool { return a >= b })
	case wasm.OpcodeI64GeU:
		ip.binaryU64Bool(func(a, b uint64) bool { return a >= b })

	// f32/f64 comparisons: any NaN operand returns 0, except `ne` which
	// returns 1 (spec.md §4.3's numeric-semantics table).
	case wasm.OpcodeF32Eq:
		ip.binaryF32Bool(func(a, b float32) bool { return a == b })
	case wasm.OpcodeF32Ne:
		ip.binaryF32Bool(func(a, b float32) bool { return a != b })
	case wasm.OpcodeF32Lt:
		ip.binaryF32Bool(func(a, b float32) bool { return a < b })
	case wasm.OpcodeF32Gt:
		ip.binaryF32Bool(func(a, b float32) bool { return a > b })
	case wasm.OpcodeF32Le:
		ip.binaryF32Bool(func(a, b float32) bool { return a <= b })
	case wasm.OpcodeF32Ge:
		ip.binaryF32Bool(func(a, b float32) bool { return a >= b })
	case wasm.OpcodeF64Eq:
		ip.binaryF64Bool(func(a, b float64) bool { return a == b })
	case wasm.OpcodeF64Ne:
		ip.binaryF64Bool(func(a, b float64) bool { return a != b })
	case wasm.OpcodeF64Lt:
		ip.binaryF64Bool(func(a, b float64) bool { return a < b })
	case wasm.OpcodeF64Gt:
		ip.binaryF64Bool(func(a, b float64) bool { return a > b })
	case wasm.OpcodeF64Le:
		ip.binaryF64Bool(func(a, b float64) bool { return a <= b })
	case wasm.OpcodeF64Ge:
		ip.binaryF64Bool(func(a, b float64) bool { return a >= b })

	// i32 numeric
	case wasm.OpcodeI32Clz:
		ip.unaryU32(func(a uint32) uint32 { return uint32(bits.LeadingZeros32(a)) })
	case wasm.OpcodeI32Ctz:
		ip.unaryU32(func(a uint32) uint32 { return uint32(bits.TrailingZeros32(a)) })
	case wasm.OpcodeI32Popcnt:
		ip.unaryU32(func(a uint32) uint32 { return uint32(bits.OnesCount32(a)) })
	case wasm.OpcodeI32Add:
		ip.binaryU32(func(a, b uint32) uint32 { return a + b })
	case wasm.OpcodeI32Sub:
		ip.binaryU32(func(a, b uint32) uint32 { return a - b })
	case wasm.OpcodeI32Mul:
		ip.binaryU32(func(a, b uint32) uint32 { return a * b })
	case wasm.OpcodeI32DivS:
		return ip.divI32S()
	case wasm.OpcodeI32DivU:
		return ip.binaryU32Err(func(a, b uint32) (uint32, error) {
			if b == 0 {
				return 0, ErrIntegerDivideByZero
			}
			return a / b, nil
		})
	case wasm.OpcodeI32RemS:
		return ip.binaryI32Err(func(a, b int32) (int32, error) {
			if b == 0 {
				return 0, ErrIntegerDivideByZero
			}
			if a == math.MinInt32 && b == -1 {
				return 0, nil
			}
			return a % b, nil
		})
	case wasm.OpcodeI32RemU:
		return ip.binaryU32Err(func(a, b uint32) (uint32, error) {
			if b == 0 {
				return 0, ErrIntegerDivideByZero
			}
			return a % b, nil
		})
	case wasm.OpcodeI32And:
		ip.binaryU32(func(a, b uint32) uint32 { return a & b })
	case wasm.OpcodeI32Or:
		ip.binaryU32(func(a, b uint32) uint32 { return a | b })
	case wasm.OpcodeI32Xor:
		ip.binaryU32(func(a, b uint32) uint32 { return a ^ b })
	case wasm.OpcodeI32Shl:
		ip.binaryU32(func(a, b uint32) uint32 { return a << (b % 32) })
	case wasm.OpcodeI32ShrS:
		ip.binaryI32(func(a, b int32) int32 { return a >> (uint32(b) % 32) })
	case wasm.OpcodeI32ShrU:
		ip.binaryU32(func(a, b uint32) uint32 { return a >> (b % 32) })
	case wasm.OpcodeI32Rotl:
		ip.binaryU32(func(a, b uint32) uint32 { return bits.RotateLeft32(a, int(b%32)) })
	case wasm.OpcodeI32Rotr:
		ip.binaryU32(func(a, b uint32) uint32 { return bits.RotateLeft32(a, -int(b%32)) })

	// i64 numeric
	case wasm.OpcodeI64Clz:
		ip.unaryU64(func(a uint64) uint64 { return uint64(bits.LeadingZeros64(a)) })
	case wasm.OpcodeI64Ctz:
		ip.unaryU64(func(a uint64) uint64 { return uint64(bits.TrailingZeros64(a)) })
	case wasm.OpcodeI64Popcnt:
		ip.unaryU64(func(a uint64) uint64 { return uint64(bits.OnesCount64(a)) })
	case wasm.OpcodeI64Add:
		ip.binaryU64(func(a, b uint64) uint64 { return a + b })
	case wasm.OpcodeI64Sub:
		ip.binaryU64(func(a, b uint64) uint64 { return a - b })
	case wasm.OpcodeI64Mul:
		ip.binaryU64(func(a, b uint64) uint64 { return a * b })
	case wasm.OpcodeI64DivS:
		return ip.divI64S()
	case wasm.OpcodeI64DivU:
		return ip.binaryU64Err(func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, ErrIntegerDivideByZero
			}
			return a / b, nil
		})
	case wasm.OpcodeI64RemS:
		return ip.binaryI64Err(func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, ErrIntegerDivideByZero
			}
			if a == math.MinInt64 && b == -1 {
				return 0, nil
			}
			return a % b, nil
		})
	case wasm.OpcodeI64RemU:
		return ip.binaryU64Err(func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, ErrIntegerDivideByZero
			}
			return a % b, nil
		})
	case wasm.OpcodeI64And:
		ip.binaryU64(func(a, b uint64) uint64 { return a & b })
	case wasm.OpcodeI64Or:
		ip.binaryU64(func(a, b uint64) uint64 { return a | b })
	case wasm.OpcodeI64Xor:
		ip.binaryU64(func(a, b uint64) uint64 { return a ^ b })
	case wasm.OpcodeI64Shl:
		ip.binaryU64(func(a, b uint64) uint64 { return a << (b % 64) })
	case wasm.OpcodeI64ShrS:
		ip.binaryI64(func(a, b int64) int64 { return a >> (uint64(b) % 64) })
	case wasm.OpcodeI64ShrU:
		ip.binaryU64(func(a, b uint64) uint64 { return a >> (b % 64) })
	case wasm.OpcodeI64Rotl:
		ip.binaryU64(func(a, b uint64) uint64 { return bits.RotateLeft64(a, int(b%64)) })
	case wasm.OpcodeI64Rotr:
		ip.binaryU64(func(a, b uint64) uint64 { return bits.RotateLeft64(a, -int(b%64)) })

	// f32 numeric
	case wasm.OpcodeF32Abs:
		ip.unaryF32(func(a float32) float32 { return float32(math.Abs(float64(a))) })
	case wasm.OpcodeF32Neg:
		ip.unaryF32(func(a float32) float32 { return -a })
	case wasm.OpcodeF32Ceil:
		ip.unaryF32(func(a float32) float32 { return float32(math.Ceil(float64(a))) })
	case wasm.OpcodeF32Floor:
		ip.unaryF32(func(a float32) float32 { return float32(math.Floor(float64(a))) })
	case wasm.OpcodeF32Trunc:
		ip.unaryF32(func(a float32) float32 { return float32(math.Trunc(float64(a))) })
	case wasm.OpcodeF32Nearest:
		ip.unaryF32(moremath.WasmCompatNearestF32)
	case wasm.OpcodeF32Sqrt:
		ip.unaryF32(func(a float32) float32 { return float32(math.Sqrt(float64(a))) })
	case wasm.OpcodeF32Add:
		ip.binaryF32(func(a, b float32) float32 { return a + b })
	case wasm.OpcodeF32Sub:
		ip.binaryF32(func(a, b float32) float32 { return a - b })
	case wasm.OpcodeF32Mul:
		ip.binaryF32(func(a, b float32) float32 { return a * b })
	case wasm.OpcodeF32Div:
		ip.binaryF32(func(a, b float32) float32 { return a / b })
	case wasm.OpcodeF32Min:
		ip.binaryF32(func(a, b float32) float32 { return float32(moremath.WasmCompatMin(float64(a), float64(b))) })
	case wasm.OpcodeF32Max:
		ip.binaryF32(func(a, b float32) float32 { return float32(moremath.WasmCompatMax(float64(a), float64(b))) })
	case wasm.OpcodeF32Copysign:
		ip.binaryF32(func(a, b float32) float32 { return float32(math.Copysign(float64(a), float64(b))) })

	// f64 numeric
	case wasm.OpcodeF64Abs:
		ip.unaryF64(math.Abs)
	case wasm.OpcodeF64Neg:
		ip.unaryF64(func(a float64) float64 { return -a })
	case wasm.OpcodeF64Ceil:
		ip.unaryF64(math.Ceil)
	case wasm.OpcodeF64Floor:
		ip.unaryF64(math.Floor)
	case wasm.OpcodeF64Trunc:
		ip.unaryF64(math.Trunc)
	case wasm.OpcodeF64Nearest:
		ip.unaryF64(moremath.WasmCompatNearestF64)
	case wasm.OpcodeF64Sqrt:
		ip.unaryF64(math.Sqrt)
	case wasm.OpcodeF64Add:
		ip.binaryF64(func(a, b float64) float64 { return a + b })
	case wasm.OpcodeF64Sub:
		ip.binaryF64(func(a, b float64) float64 { return a - b })
	case wasm.OpcodeF64Mul:
		ip.binaryF64(func(a, b float64) float64 { return a * b })
	case wasm.OpcodeF64Div:
		ip.binaryF64(func(a, b float64) float64 { return a / b })
	case wasm.OpcodeF64Min:
		ip.binaryF64(moremath.WasmCompatMin)
	case wasm.OpcodeF64Max:
		ip.binaryF64(moremath.WasmCompatMax)
	case wasm.OpcodeF64Copysign:
		ip.binaryF64(math.Copysign)

	// conversions
	case wasm.OpcodeI32WrapI64:
		ip.unaryI64ToI32(func(a int64) int32 { return int32(a) })
	case wasm.OpcodeI64ExtendI32S:
		ip.unaryI32ToI64(func(a int32) int64 { return int64(a) })
	case wasm.OpcodeI64ExtendI32U:
		ip.unaryU32ToU64(func(a uint32) uint64 { return uint64(a) })
	case wasm.OpcodeF32DemoteF64:
		ip.unaryF64ToF32(func(a float64) float32 { return float32(a) })
	case wasm.OpcodeF64PromoteF32:
		ip.unaryF32ToF64(func(a float32) float64 { return float64(a) })
	case wasm.OpcodeF32ConvertI32S:
		ip.unaryI32ToF32(func(a int32) float32 { return float32(a) })
	case wasm.OpcodeF32ConvertI32U:
		ip.unaryU32ToF32(func(a uint32) float32 { return float32(a) })
	case wasm.OpcodeF32ConvertI64S:
		ip.unaryI64ToF32(func(a int64) float32 { return float32(a) })
	case wasm.OpcodeF32ConvertI64U:
		ip.unaryU64ToF32(func(a uint64) float32 { return float32(a) })
	case wasm.OpcodeF64ConvertI32S:
		ip.unaryI32ToF64(func(a int32) float64 { return float64(a) })
	case wasm.OpcodeF64ConvertI32U:
		ip.unaryU32ToF64(func(a uint32) float64 { return float64(a) })
	case wasm.OpcodeF64ConvertI64S:
		ip.unaryI64ToF64(func(a int64) float64 { return float64(a) })
	case wasm.OpcodeF64ConvertI64U:
		ip.unaryU64ToF64(func(a uint64) float64 { return float64(a) })
	case wasm.OpcodeI32ReinterpretF32, wasm.OpcodeF32ReinterpretI32,
		wasm.OpcodeI64ReinterpretF64, wasm.OpcodeF64ReinterpretI64:
		// Values are already carried as raw bit patterns on the operand
		// stack (spec.md §3); reinterpretation changes nothing at runtime.

	case wasm.OpcodeI32TruncF32S:
		return ip.truncToI32(float64(api.DecodeF32(ip.stack[len(ip.stack)-1])), math.MinInt32, math.MaxInt32)
	case wasm.OpcodeI32TruncF64S:
		return ip.truncToI32(api.DecodeF64(ip.stack[len(ip.stack)-1]), math.MinInt32, math.MaxInt32)
	case wasm.OpcodeI32TruncF32U:
		return ip.truncToU32(float64(api.DecodeF32(ip.stack[len(ip.stack)-1])), 0, math.MaxUint32)
	case wasm.OpcodeI32TruncF64U:
		return ip.truncToU32(api.DecodeF64(ip.stack[len(ip.stack)-1]), 0, math.MaxUint32)
	case wasm.OpcodeI64TruncF32S:
		return ip.truncToI64(float64(api.DecodeF32(ip.stack[len(ip.stack)-1])), math.MinInt64, math.MaxInt64)
	case wasm.OpcodeI64TruncF64S:
		return ip.truncToI64(api.DecodeF64(ip.stack[len(ip.stack)-1]), math.MinInt64, math.MaxInt64)
	case wasm.OpcodeI64TruncF32U:
		return ip.truncToU64(float64(api.DecodeF32(ip.stack[len(ip.stack)-1])), 0, math.MaxUint64)
	case wasm.OpcodeI64TruncF64U:
		return ip.truncToU64(api.DecodeF64(ip.stack[len(ip.stack)-1]), 0, math.MaxUint64)

	// sign-extension operators (opcodes 0xC0..0xC4, spec.md §6)
	case wasm.OpcodeI32Extend8S:
		ip.unaryI32(func(a int32) int32 { return int32(int8(a)) })
	case wasm.OpcodeI32Extend16S:
		ip.unaryI32(func(a int32) int32 { return int32(int16(a)) })
	case wasm.OpcodeI64Extend8S:
		ip.unaryI64(func(a int64) int64 { return int64(int8(a)) })
	case wasm.OpcodeI64Extend16S:
		ip.unaryI64(func(a int64) int64 { return int64(int16(a)) })
	case wasm.OpcodeI64Extend32S:
		ip.unaryI64(func(a int64) int64 { return int64(int32(a)) })

	default:
		return newInternalError("unimplemented opcode")
	}
	return nil
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (ip *Interpreter) unaryI32(f func(int32) int32) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeI32(f(api.DecodeI32(ip.stack[top])))
}
func (ip *Interpreter) unaryU32(f func(uint32) uint32) {
	top := len(ip.stack) - 1
	ip.stack[top] = uint64(f(uint32(ip.stack[top])))
}
func (ip *Interpreter) unaryI64(f func(int64) int64) {
	top := len(ip.stack) - 1
	ip.stack[top] = uint64(f(int64(ip.stack[top])))
}
func (ip *Interpreter) unaryU64(f func(uint64) uint64) {
	top := len(ip.stack) - 1
	ip.stack[top] = f(ip.stack[top])
}
func (ip *Interpreter) unaryF32(f func(float32) float32) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF32(f(api.DecodeF32(ip.stack[top])))
}
func (ip *Interpreter) unaryF64(f func(float64) float64) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF64(f(api.DecodeF64(ip.stack[top])))
}

func (ip *Interpreter) binaryU32(f func(a, b uint32) uint32) {
	n := len(ip.stack)
	a, b := uint32(ip.stack[n-2]), uint32(ip.stack[n-1])
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = uint64(f(a, b))
}
func (ip *Interpreter) binaryI32(f func(a, b int32) int32) {
	n := len(ip.stack)
	a, b := api.DecodeI32(ip.stack[n-2]), api.DecodeI32(ip.stack[n-1])
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = api.EncodeI32(f(a, b))
}
func (ip *Interpreter) binaryU64(f func(a, b uint64) uint64) {
	n := len(ip.stack)
	a, b := ip.stack[n-2], ip.stack[n-1]
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = f(a, b)
}
func (ip *Interpreter) binaryI64(f func(a, b int64) int64) {
	n := len(ip.stack)
	a, b := int64(ip.stack[n-2]), int64(ip.stack[n-1])
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = uint64(f(a, b))
}
func (ip *Interpreter) binaryF32(f func(a, b float32) float32) {
	n := len(ip.stack)
	a, b := api.DecodeF32(ip.stack[n-2]), api.DecodeF32(ip.stack[n-1])
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = api.EncodeF32(f(a, b))
}
func (ip *Interpreter) binaryF64(f func(a, b float64) float64) {
	n := len(ip.stack)
	a, b := api.DecodeF64(ip.stack[n-2]), api.DecodeF64(ip.stack[n-1])
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = api.EncodeF64(f(a, b))
}

func (ip *Interpreter) binaryI32Bool(f func(a, b int32) bool) {
	ip.binaryI32(func(a, b int32) int32 { return b2i(f(a, b)) })
}
func (ip *Interpreter) binaryU32Bool(f func(a, b uint32) bool) {
	ip.binaryU32(func(a, b uint32) uint32 { return uint32(b2i(f(a, b))) })
}
func (ip *Interpreter) binaryI64Bool(f func(a, b int64) bool) {
	n := len(ip.stack)
	a, b := int64(ip.stack[n-2]), int64(ip.stack[n-1])
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = uint64(b2i(f(a, b)))
}
func (ip *Interpreter) binaryU64Bool(f func(a, b uint64) bool) {
	n := len(ip.stack)
	a, b := ip.stack[n-2], ip.stack[n-1]
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = uint64(b2i(f(a, b)))
}
func (ip *Interpreter) binaryF32Bool(f func(a, b float32) bool) {
	n := len(ip.stack)
	a, b := api.DecodeF32(ip.stack[n-2]), api.DecodeF32(ip.stack[n-1])
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = uint64(b2i(f(a, b)))
}
func (ip *Interpreter) binaryF64Bool(f func(a, b float64) bool) {
	n := len(ip.stack)
	a, b := api.DecodeF64(ip.stack[n-2]), api.DecodeF64(ip.stack[n-1])
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = uint64(b2i(f(a, b)))
}

func (ip *Interpreter) unaryI64ToI32(f func(int64) int32) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeI32(f(int64(ip.stack[top])))
}
func (ip *Interpreter) unaryI32ToI64(f func(int32) int64) {
	top := len(ip.stack) - 1
	ip.stack[top] = uint64(f(api.DecodeI32(ip.stack[top])))
}
func (ip *Interpreter) unaryU32ToU64(f func(uint32) uint64) {
	top := len(ip.stack) - 1
	ip.stack[top] = f(uint32(ip.stack[top]))
}
func (ip *Interpreter) unaryF64ToF32(f func(float64) float32) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF32(f(api.DecodeF64(ip.stack[top])))
}
func (ip *Interpreter) unaryF32ToF64(f func(float32) float64) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF64(f(api.DecodeF32(ip.stack[top])))
}
func (ip *Interpreter) unaryI32ToF32(f func(int32) float32) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF32(f(api.DecodeI32(ip.stack[top])))
}
func (ip *Interpreter) unaryU32ToF32(f func(uint32) float32) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF32(f(uint32(ip.stack[top])))
}
func (ip *Interpreter) unaryI64ToF32(f func(int64) float32) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF32(f(int64(ip.stack[top])))
}
func (ip *Interpreter) unaryU64ToF32(f func(uint64) float32) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF32(f(ip.stack[top]))
}
func (ip *Interpreter) unaryI32ToF64(f func(int32) float64) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF64(f(api.DecodeI32(ip.stack[top])))
}
func (ip *Interpreter) unaryU32ToF64(f func(uint32) float64) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF64(f(uint32(ip.stack[top])))
}
func (ip *Interpreter) unaryI64ToF64(f func(int64) float64) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF64(f(int64(ip.stack[top])))
}
func (ip *Interpreter) unaryU64ToF64(f func(uint64) float64) {
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeF64(f(ip.stack[top]))
}

func (ip *Interpreter) binaryU32Err(f func(a, b uint32) (uint32, error)) error {
	n := len(ip.stack)
	a, b := uint32(ip.stack[n-2]), uint32(ip.stack[n-1])
	v, err := f(a, b)
	if err != nil {
		return err
	}
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = uint64(v)
	return nil
}
func (ip *Interpreter) binaryI32Err(f func(a, b int32) (int32, error)) error {
	n := len(ip.stack)
	a, b := api.DecodeI32(ip.stack[n-2]), api.DecodeI32(ip.stack[n-1])
	v, err := f(a, b)
	if err != nil {
		return err
	}
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = api.EncodeI32(v)
	return nil
}
func (ip *Interpreter) binaryU64Err(f func(a, b uint64) (uint64, error)) error {
	n := len(ip.stack)
	a, b := ip.stack[n-2], ip.stack[n-1]
	v, err := f(a, b)
	if err != nil {
		return err
	}
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = v
	return nil
}
func (ip *Interpreter) binaryI64Err(f func(a, b int64) (int64, error)) error {
	n := len(ip.stack)
	a, b := int64(ip.stack[n-2]), int64(ip.stack[n-1])
	v, err := f(a, b)
	if err != nil {
		return err
	}
	ip.stack = ip.stack[:n-1]
	ip.stack[n-2] = uint64(v)
	return nil
}

// divI32S implements i32.div_s's two distinct trap conditions (spec.md
// §4.3/§8): division by zero, and the lone overflow case INT_MIN / -1.
func (ip *Interpreter) divI32S() error {
	return ip.binaryI32Err(func(a, b int32) (int32, error) {
		if b == 0 {
			return 0, ErrIntegerDivideByZero
		}
		if a == math.MinInt32 && b == -1 {
			return 0, ErrIntegerOverflow
		}
		return a / b, nil
	})
}

func (ip *Interpreter) divI64S() error {
	return ip.binaryI64Err(func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrIntegerDivideByZero
		}
		if a == math.MinInt64 && b == -1 {
			return 0, ErrIntegerOverflow
		}
		return a / b, nil
	})
}

// truncToI32/truncToU32/truncToI64/truncToU64 implement the trunc family:
// NaN or a magnitude outside the target range traps `integer overflow`,
// matching the Wasm spec's stricter-than-Go truncation semantics (Go's
// float-to-int conversion saturates instead of trapping).
//
// The upper bound is checked as v >= hi+1, not v > hi: hi is math.MaxInt32
// (2147483647), which converts to float64 exactly, so v > hi would wrongly
// trap every value in [2147483647, 2147483648) even though they truncate
// to a representable int32. hi+1 == 2147483648 is also exact in float64,
// so this matches truncToU32's already-correct v >= hi+1 check. The lower
// bound is checked as v <= lo-1 for the same reason: values in
// (-2147483649, -2147483648) truncate to MinInt32 and do not trap.
func (ip *Interpreter) truncToI32(v float64, lo, hi float64) error {
	if math.IsNaN(v) || v <= lo-1 || v >= hi+1 {
		return ErrIntegerOverflow
	}
	top := len(ip.stack) - 1
	ip.stack[top] = api.EncodeI32(int32(math.Trunc(v)))
	return nil
}
func (ip *Interpreter) truncToU32(v float64, lo, hi float64) error {
	if math.IsNaN(v) || v <= -1 || v >= hi+1 {
		return ErrIntegerOverflow
	}
	top := len(ip.stack) - 1
	ip.stack[top] = uint64(uint32(math.Trunc(v)))
	return nil
}
func (ip *Interpreter) truncToI64(v float64, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v >= hi {
		return ErrIntegerOverflow
	}
	top := len(ip.stack) - 1
	ip.stack[top] = uint64(int64(math.Trunc(v)))
	return nil
}
func (ip *Interpreter) truncToU64(v float64, lo, hi float64) error {
	if math.IsNaN(v) || v <= -1 || v >= hi {
		return ErrIntegerOverflow
	}
	top := len(ip.stack) - 1
	ip.stack[top] = uint64(math.Trunc(v))
	return nil
}
