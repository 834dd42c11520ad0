// (c) 2019-2020, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bundle assembles the ordered tx list spec.md §4.5 point 6 calls
// tx_bundle and provides the hashing/verification primitives the merger and
// estimator need around it. Transaction signing and the relay submission
// transport are explicitly out of scope (spec.md §1) — this package never
// holds or uses a private key; it only hashes and verifies.
package bundle

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/rlp"
)

var (
	// ErrEmptyBundle is returned when a TxBundle has no stuffing txs and no
	// pending tx request to assemble.
	ErrEmptyBundle = errors.New("bundle: no stuffing txs and no pending tx request")

	// ErrMalformedSignatureHeader is returned by VerifySignatureHeader when
	// the header isn't the "<address>:<signature>" shape Flashbots-style
	// relays use.
	ErrMalformedSignatureHeader = errors.New("bundle: malformed signature header")
)

// TxBundle is the tx_bundle spec.md §4.5 point 6 describes: an ordered list
// of already-signed stuffing-tx RLPs, followed by a placeholder for the
// arbitrage tx, which still needs a signature this package never produces.
type TxBundle struct {
	StuffingTxRLPs [][]byte
	PendingTxHash  common.Hash
}

// Assemble RLP-encodes each stuffing tx in order and records the pending
// (not-yet-signed) arbitrage tx's identity hash, so downstream consumers
// (merger dedup, health-event reporting) have a stable TxBundle.Hash before
// a signer ever runs.
func Assemble(stuffingTxs []*types.Transaction, pendingTxHash common.Hash) (*TxBundle, error) {
	if len(stuffingTxs) == 0 && pendingTxHash == (common.Hash{}) {
		return nil, ErrEmptyBundle
	}
	rlps := make([][]byte, len(stuffingTxs))
	for i, tx := range stuffingTxs {
		raw, err := rlp.EncodeToBytes(tx)
		if err != nil {
			return nil, fmt.Errorf("bundle: rlp encode stuffing tx %s: %w", tx.Hash(), err)
		}
		rlps[i] = raw
	}
	return &TxBundle{StuffingTxRLPs: rlps, PendingTxHash: pendingTxHash}, nil
}

// Hash computes a deterministic identity for b, independent of the eventual
// signed arbitrage tx, by keccak256-hashing the concatenation of each
// stuffing tx's RLP plus the pending tx's placeholder hash. cmd/loom's
// logReady uses it to name each ready bundle in its log line.
func (b *TxBundle) Hash() common.Hash {
	var buf bytes.Buffer
	for _, raw := range b.StuffingTxRLPs {
		buf.Write(raw)
	}
	buf.Write(b.PendingTxHash.Bytes())
	return crypto.Keccak256Hash(buf.Bytes())
}

// VerifySignatureHeader recovers the signing address behind a
// Flashbots-style "X-Flashbots-Signature: <address>:<signature>" relay
// request header, given the exact body it was computed over. It verifies
// the recovered address matches the one claimed in the header; it never
// signs anything itself. body is hashed with the same
// keccak256(body)-then-ecrecover scheme relays expect.
func VerifySignatureHeader(body []byte, header string) (common.Address, error) {
	sep := strings.IndexByte(header, ':')
	if sep < 0 {
		return common.Address{}, ErrMalformedSignatureHeader
	}
	claimed := common.HexToAddress(header[:sep])
	sigHex := header[sep+1:]

	sig, err := decodeSignature(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("bundle: decode signature: %w", err)
	}

	digest := crypto.Keccak256Hash(body)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("bundle: recover pubkey: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != claimed {
		return common.Address{}, fmt.Errorf("bundle: signature header claims %s, recovered %s", claimed, recovered)
	}
	return recovered, nil
}

func decodeSignature(hexSig string) ([]byte, error) {
	hexSig = strings.TrimPrefix(strings.TrimPrefix(hexSig, "0x"), "0X")
	raw, err := hex.DecodeString(hexSig)
	if err != nil {
		return nil, err
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("bundle: signature is %d bytes, want 65", len(raw))
	}
	return raw, nil
}
