package domain

// TokenMetadata combines the on-chain Metaplex record with the off-chain JSON
// it points to. Any field may be empty.
type TokenMetadata struct {
	Name        string `json:"name,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	URI         string `json:"uri,omitempty"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
}
