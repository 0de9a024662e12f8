package wasmtest

const (
	opUnreachable byte = 0x00
	opIf          byte = 0x04
	opElse        byte = 0x05
	opEnd         byte = 0x0B
	opReturn      byte = 0x0F
	opCall        byte = 0x10
	opDrop        byte = 0x1A
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opGlobalGet   byte = 0x23
	opGlobalSet   byte = 0x24
	opI32Load     byte = 0x28
	opI64Load     byte = 0x29
	opI32Load8U   byte = 0x2D
	opI32Store    byte = 0x36
	opI64Store    byte = 0x37
	opI32Store8   byte = 0x3A
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42
	opI32Eqz      byte = 0x45
	opI32GeS      byte = 0x4E
	opI32Add      byte = 0x6A
	opI32And      byte = 0x71
	opI64Add      byte = 0x7C
	opI32WrapI64  byte = 0xA7
	opI64ExtendU  byte = 0xAD

	blockVoid byte = 0x40
)

func op(b byte) []byte { return []byte{b} }

func withIndex(b byte, idx uint32) []byte {
	return appendU32([]byte{b}, idx)
}

func memarg(b byte, align, offset uint32) []byte {
	out := appendU32([]byte{b}, align)
	return appendU32(out, offset)
}

func Unreachable() []byte       { return op(opUnreachable) }
func Return() []byte            { return op(opReturn) }
func Drop() []byte              { return op(opDrop) }
func Else() []byte              { return op(opElse) }
func End() []byte               { return op(opEnd) }
func Call(fn uint32) []byte     { return withIndex(opCall, fn) }
func LocalGet(i uint32) []byte  { return withIndex(opLocalGet, i) }
func LocalSet(i uint32) []byte  { return withIndex(opLocalSet, i) }
func GlobalGet(i uint32) []byte { return withIndex(opGlobalGet, i) }
func GlobalSet(i uint32) []byte { return withIndex(opGlobalSet, i) }
func I32Load() []byte           { return memarg(opI32Load, 2, 0) }
func I64Load() []byte           { return memarg(opI64Load, 3, 0) }
func I32Load8U() []byte         { return memarg(opI32Load8U, 0, 0) }
func I32Store() []byte          { return memarg(opI32Store, 2, 0) }
func I64Store() []byte          { return memarg(opI64Store, 3, 0) }
func I32Store8() []byte         { return memarg(opI32Store8, 0, 0) }
func I32Eqz() []byte            { return op(opI32Eqz) }
func I32GeS() []byte            { return op(opI32GeS) }
func I32Add() []byte            { return op(opI32Add) }
func I32And() []byte            { return op(opI32And) }
func I64Add() []byte            { return op(opI64Add) }
func I32WrapI64() []byte        { return op(opI32WrapI64) }
func I64ExtendI32U() []byte     { return op(opI64ExtendU) }
func I32Const(v int32) []byte   { return appendS64([]byte{opI32Const}, int64(v)) }
func I64Const(v int64) []byte   { return appendS64([]byte{opI64Const}, v) }

// If opens a block without results; close it with End.
func If() []byte { return []byte{opIf, blockVoid} }
