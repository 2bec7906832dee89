package wire

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// LoadedAddresses are the keys a v0 transaction pulls from lookup tables,
// as reported by the node in the transaction meta.
type LoadedAddresses struct {
	Writable []string
	Readonly []string
}

// InnerGroup holds the inner instructions executed by one outer instruction.
type InnerGroup struct {
	Index        int
	Instructions []RawInstruction
}

// RawInstruction is a compiled instruction with base58 data, as returned in
// transaction meta.
type RawInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string
}

// Instruction is an instruction with resolved keys.
type Instruction struct {
	ProgramID string
	Accounts  []string
	Data      []byte
	Outer     int // index of the outer instruction
	Inner     int // position within the inner group, -1 for outer instructions
}

// DecodedTransaction is a transaction with its account table resolved.
type DecodedTransaction struct {
	Signatures        []string
	AccountKeys       []string // static, then loaded writable, then loaded readonly
	Instructions      []Instruction
	InnerInstructions []Instruction
}

// DecodeTransaction decodes a legacy or v0 wire transaction.
func DecodeTransaction(raw []byte, loaded LoadedAddresses) (dtx *DecodedTransaction, err error) {
	const op = "transaction"
	if len(raw) == 0 {
		return nil, decodeErr(op, "empty payload")
	}
	defer func() {
		if r := recover(); r != nil {
			dtx, err = nil, decodeErr(op, "malformed transaction: %v", r)
		}
	}()

	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return nil, decodeErr(op, "%v", err)
	}

	keys := make([]string, 0, len(tx.Message.AccountKeys)+len(loaded.Writable)+len(loaded.Readonly))
	for _, k := range tx.Message.AccountKeys {
		keys = append(keys, k.String())
	}
	keys = append(keys, loaded.Writable...)
	keys = append(keys, loaded.Readonly...)

	out := &DecodedTransaction{
		Signatures:  make([]string, 0, len(tx.Signatures)),
		AccountKeys: keys,
	}
	for _, sig := range tx.Signatures {
		out.Signatures = append(out.Signatures, sig.String())
	}

	for i, ci := range tx.Message.Instructions {
		accounts := make([]int, len(ci.Accounts))
		for j, a := range ci.Accounts {
			accounts[j] = int(a)
		}
		ix, err := resolve(keys, int(ci.ProgramIDIndex), accounts)
		if err != nil {
			return nil, decodeErr(op, "instruction %d: %v", i, err)
		}
		ix.Data = append([]byte(nil), ci.Data...)
		ix.Outer, ix.Inner = i, -1
		out.Instructions = append(out.Instructions, ix)
	}
	return out, nil
}

// AttachInner resolves inner instructions against the transaction's keys.
func (t *DecodedTransaction) AttachInner(groups []InnerGroup) error {
	const op = "inner instructions"
	for _, g := range groups {
		for j, ri := range g.Instructions {
			ix, err := resolve(t.AccountKeys, ri.ProgramIDIndex, ri.Accounts)
			if err != nil {
				return decodeErr(op, "group %d instruction %d: %v", g.Index, j, err)
			}
			data, err := base58.Decode(ri.Data)
			if err != nil && ri.Data != "" {
				return decodeErr(op, "group %d instruction %d: bad base58 data: %v", g.Index, j, err)
			}
			ix.Data = data
			ix.Outer, ix.Inner = g.Index, j
			t.InnerInstructions = append(t.InnerInstructions, ix)
		}
	}
	return nil
}

func resolve(keys []string, programIdx int, accounts []int) (Instruction, error) {
	if programIdx < 0 || programIdx >= len(keys) {
		return Instruction{}, fmt.Errorf("program index %d out of range (%d keys)", programIdx, len(keys))
	}
	ix := Instruction{ProgramID: keys[programIdx], Accounts: make([]string, len(accounts))}
	for i, a := range accounts {
		if a < 0 || a >= len(keys) {
			return Instruction{}, fmt.Errorf("account index %d out of range (%d keys)", a, len(keys))
		}
		ix.Accounts[i] = keys[a]
	}
	return ix, nil
}
