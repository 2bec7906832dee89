package wire

import "github.com/mr-tron/base58"

// Create instruction account positions.
const (
	createMintIdx            = 0
	createMintAuthorityIdx   = 1
	createBondingCurveIdx    = 2
	createAssociatedCurveIdx = 3
	createGlobalIdx          = 4
	createMetadataIdx        = 6
	createUserIdx            = 7
	createMinAccounts        = 8
)

// Upper bounds for create argument strings.
const (
	maxNameLen   = 64
	maxSymbolLen = 32
	maxURILen    = 256
)

// CreateArgs are the arguments of a create instruction.
type CreateArgs struct {
	Name    string
	Symbol  string
	URI     string
	Creator string // absent on older instruction layouts
}

// CreateAccounts are the keys of a create instruction.
type CreateAccounts struct {
	Mint            string
	MintAuthority   string
	BondingCurve    string
	AssociatedCurve string
	Global          string
	Metadata        string
	Creator         string
	Args            CreateArgs
	FromInner       bool
}

// ExtractCreate finds the first create instruction for programID, scanning
// outer instructions first and inner instructions after.
func ExtractCreate(tx *DecodedTransaction, programID string) (CreateAccounts, error) {
	if tx == nil {
		return CreateAccounts{}, ErrNoCreate
	}
	for _, ix := range tx.Instructions {
		if ix.ProgramID == programID && Classify(ix.Data) == KindCreate {
			return createFrom(ix, false)
		}
	}
	for _, ix := range tx.InnerInstructions {
		if ix.ProgramID == programID && Classify(ix.Data) == KindCreate {
			return createFrom(ix, true)
		}
	}
	return CreateAccounts{}, ErrNoCreate
}

func createFrom(ix Instruction, inner bool) (CreateAccounts, error) {
	if len(ix.Accounts) < createMinAccounts {
		return CreateAccounts{}, decodeErr("create", "expected at least %d accounts, got %d", createMinAccounts, len(ix.Accounts))
	}
	ca := CreateAccounts{
		Mint:            ix.Accounts[createMintIdx],
		MintAuthority:   ix.Accounts[createMintAuthorityIdx],
		BondingCurve:    ix.Accounts[createBondingCurveIdx],
		AssociatedCurve: ix.Accounts[createAssociatedCurveIdx],
		Global:          ix.Accounts[createGlobalIdx],
		Metadata:        ix.Accounts[createMetadataIdx],
		Creator:         ix.Accounts[createUserIdx],
		FromInner:       inner,
	}
	// Argument parsing is best effort; the accounts are what matter.
	if args, err := DecodeCreateArgs(ix.Data); err == nil {
		ca.Args = args
	}
	return ca, nil
}

// DecodeCreateArgs parses create instruction data.
func DecodeCreateArgs(data []byte) (CreateArgs, error) {
	if Classify(data) != KindCreate {
		return CreateArgs{}, decodeErr("create args", "not a create instruction")
	}
	r := newReader("create args", data, 8)
	var (
		a   CreateArgs
		err error
	)
	if a.Name, err = r.str(maxNameLen); err != nil {
		return CreateArgs{}, err
	}
	if a.Symbol, err = r.str(maxSymbolLen); err != nil {
		return CreateArgs{}, err
	}
	if a.URI, err = r.str(maxURILen); err != nil {
		return CreateArgs{}, err
	}
	if r.remaining() >= 32 {
		if a.Creator, err = r.pubkey(); err != nil {
			return CreateArgs{}, err
		}
	}
	return a, nil
}

// EncodeCreateArgs builds create instruction data. Creator is omitted when empty.
func EncodeCreateArgs(a CreateArgs) []byte {
	out := append([]byte(nil), CreateDiscriminator[:]...)
	out = appendString(out, a.Name)
	out = appendString(out, a.Symbol)
	out = appendString(out, a.URI)
	if a.Creator != "" {
		if b, err := base58.Decode(a.Creator); err == nil && len(b) == 32 {
			out = append(out, b...)
		}
	}
	return out
}
