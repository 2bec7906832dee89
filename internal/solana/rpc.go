package solana

import "context"

// Gateway is the subset of Solana JSON-RPC the sniper uses.
type Gateway interface {
	// GetAccountInfo returns nil, nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTransaction fails with a TransientNetworkError wrapping ErrNotVisible
	// until the node can serve the transaction.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	GetBlockHeight(ctx context.Context) (uint64, error)

	// SendTransaction submits a signed wire transaction and returns its signature.
	SendTransaction(ctx context.Context, raw []byte, opts SendOptions) (string, error)

	// GetSignatureStatuses returns one entry per signature, nil when unknown.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
}

// Transaction is a fetched transaction in wire form plus its metadata.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Raw       []byte
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	LoadedAddresses   LoadedAddresses
	InnerInstructions []InnerInstructions
}

// LoadedAddresses are the lookup-table accounts of a v0 transaction.
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// InnerInstructions groups CPI instructions under the outer instruction Index.
type InnerInstructions struct {
	Index        int                `json:"index"`
	Instructions []InnerInstruction `json:"instructions"`
}

// InnerInstruction indexes into the resolved account key list. Data is base58.
type InnerInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
}

var (
	_ Gateway = (*HTTPClient)(nil)
	_ Gateway = (*FailoverClient)(nil)
)
