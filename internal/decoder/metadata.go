package decoder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/wire"
)

const maxMetadataBody = 1 << 20

// resolveMetadata merges create arguments, the Metaplex record and the
// off-chain JSON. Returns nil when nothing was found.
func (d *Decoder) resolveMetadata(ctx context.Context, ca wire.CreateAccounts) *domain.TokenMetadata {
	log := d.logger.WithField("mint", ca.Mint)
	meta := domain.TokenMetadata{
		Name:   ca.Args.Name,
		Symbol: ca.Args.Symbol,
		URI:    ca.Args.URI,
	}

	if onchain, err := d.FetchOnchainMetadata(ctx, ca.Mint); err != nil {
		observability.RecordDecodeError("metadata")
		log.WithError(err).Debug("on-chain metadata unavailable")
	} else if onchain != nil {
		meta.Name = firstNonEmpty(onchain.Name, meta.Name)
		meta.Symbol = firstNonEmpty(onchain.Symbol, meta.Symbol)
		meta.URI = firstNonEmpty(onchain.URI, meta.URI)
	}

	if meta.URI != "" {
		if err := d.FetchOffchainMetadata(ctx, meta.URI, &meta); err != nil {
			observability.RecordDecodeError("offchain")
			log.WithFields(logrus.Fields{"uri": meta.URI}).WithError(err).Warn("off-chain metadata fetch failed")
		}
	}

	if meta == (domain.TokenMetadata{}) {
		return nil
	}
	return &meta
}

// FetchOnchainMetadata reads the Metaplex metadata account of mint.
// Returns nil, nil when the account does not exist.
func (d *Decoder) FetchOnchainMetadata(ctx context.Context, mint string) (*wire.MetaplexMetadata, error) {
	addr, err := wire.MetadataAddress(d.opts.MetadataProgram, mint)
	if err != nil {
		return nil, fmt.Errorf("derive metadata address: %w", err)
	}
	info, err := d.opts.Gateway.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("get metadata account %s: %w", addr, err)
	}
	if info == nil {
		return nil, nil
	}
	m, err := wire.ParseMetaplexMetadata(info.Data)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FetchOffchainMetadata fills name, symbol, image and description from the
// JSON document at uri. Fields already set keep their value, except image and
// description which only exist off-chain.
func (d *Decoder) FetchOffchainMetadata(ctx context.Context, uri string, meta *domain.TokenMetadata) error {
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return fmt.Errorf("unsupported metadata uri scheme: %s", uri)
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.MetadataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metadata status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBody))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("metadata at %s is not valid JSON", uri)
	}

	doc := gjson.ParseBytes(body)
	meta.Name = firstNonEmpty(meta.Name, doc.Get("name").String())
	meta.Symbol = firstNonEmpty(meta.Symbol, doc.Get("symbol").String())
	meta.Image = doc.Get("image").String()
	meta.Description = doc.Get("description").String()
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
