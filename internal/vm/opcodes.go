// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vm implements the bytecode dispatch loop: the opcode set, operand
// decoding, and the stack/dynamic/static memory reads and writes each
// opcode performs.
package vm

// Op is a single bytecode instruction's opcode byte.
//
// The source bytecode this runtime replaces assigned call_external_with_id
// and fixed_mul the same byte (0x25), a leftover of the opcode table
// growing informally over time. This table assigns every opcode a distinct
// value instead, and drops the with-id variant of call_external, which was
// never wired to a distinct code path from the by-name form it collided
// with.
type Op byte

const (
	OpReturn Op = iota
	OpMemCpyZeroPage
	OpMemCpy
	OpListConj
	OpCall
	OpCurry
	OpCallExternal
	OpEnumCase
	OpCasePatternMatching
	OpCreateList
	OpCreateArray
	OpCreateStruct
	OpUpdateStruct
	OpStringAppend
	OpJump
	OpBranchFalse
	OpBranchTrue
	OpCmpEqual
	OpCmpNotEqual
	OpTailCall
	OpIntAdd
	OpIntSub
	OpIntMul
	OpIntDiv
	OpIntMod
	OpIntEqual
	OpIntNotEqual
	OpIntLess
	OpIntLessEqual
	OpIntGreater
	OpIntGreaterEqual
	OpIntAnd
	OpIntOr
	OpIntXor
	OpIntShl
	OpIntShr
	OpIntNot
	OpIntNegate
	OpBoolNot
	OpFixedMul
	OpFixedDiv
	OpStructGet
	OpStructSplit
	OpRegToReg
	opCount
)

var opNames = [opCount]string{
	OpReturn:              "return",
	OpMemCpyZeroPage:      "mem_cpy_zero_page",
	OpMemCpy:              "mem_cpy",
	OpListConj:            "list_conj",
	OpCall:                "call",
	OpCurry:               "curry",
	OpCallExternal:        "call_external",
	OpEnumCase:            "enum_case",
	OpCasePatternMatching: "case_pattern_matching",
	OpCreateList:          "create_list",
	OpCreateArray:         "create_array",
	OpCreateStruct:        "create_struct",
	OpUpdateStruct:        "update_struct",
	OpStringAppend:        "string_append",
	OpJump:                "jump",
	OpBranchFalse:         "branch_false",
	OpBranchTrue:          "branch_true",
	OpCmpEqual:            "cmp_equal",
	OpCmpNotEqual:         "cmp_not_equal",
	OpTailCall:            "tail_call",
	OpIntAdd:              "int_add",
	OpIntSub:              "int_sub",
	OpIntMul:              "int_mul",
	OpIntDiv:              "int_div",
	OpIntMod:              "int_mod",
	OpIntEqual:            "int_eql",
	OpIntNotEqual:         "int_neql",
	OpIntLess:             "int_less",
	OpIntLessEqual:        "int_lessequal",
	OpIntGreater:          "int_greater",
	OpIntGreaterEqual:     "int_gte",
	OpIntAnd:              "int_and",
	OpIntOr:               "int_or",
	OpIntXor:              "int_xor",
	OpIntShl:              "int_shl",
	OpIntShr:              "int_shr",
	OpIntNot:              "int_not",
	OpIntNegate:           "int_negate",
	OpBoolNot:             "bool_not",
	OpFixedMul:            "fixed_mul",
	OpFixedDiv:            "fixed_div",
	OpStructGet:           "struct_get",
	OpStructSplit:         "struct_split",
	OpRegToReg:            "reg_to_reg",
}

func (op Op) String() string {
	if int(op) >= len(opNames) || opNames[op] == "" {
		return "unknown"
	}
	return opNames[op]
}

// FixedFactor is the scale applied to a SwampFixed32: a fixed-point value v
// represents v/FixedFactor.
const FixedFactor = 1000

// MaxCallDepth bounds how many nested calls a single run's call stack may
// hold before a run is aborted as runaway recursion.
const MaxCallDepth = 512

// MaxExternalParams mirrors value.MaxExternalParams as a constant of this
// package.
const MaxExternalParams = 5
