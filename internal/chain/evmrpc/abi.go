package evmrpc

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Minimal call-data helpers for the handful of fixed read calls this
// service makes. The selectors are derived at startup from the canonical
// signatures, the arguments are all static 32-byte words, and decoding
// never goes beyond fixed-size words — so a full ABI library would add
// nothing here.

// selector returns the 4-byte call selector for a canonical signature,
// e.g. "allowance(address,address)", hex-encoded without prefix.
func selector(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return hex.EncodeToString(h.Sum(nil)[:4])
}

// padAddress left-pads a 20-byte hex address to a 32-byte call-data word.
func padAddress(addr string) (string, error) {
	a := strings.TrimPrefix(strings.ToLower(addr), "0x")
	if len(a) != 40 {
		return "", fmt.Errorf("evmrpc: %q is not a 20-byte address", addr)
	}
	if _, err := hex.DecodeString(a); err != nil {
		return "", fmt.Errorf("evmrpc: %q is not hex: %w", addr, err)
	}
	return strings.Repeat("0", 24) + a, nil
}

// decodeWords splits an eth_call result into 32-byte words.
func decodeWords(result string, want int) ([][]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(result, "0x"))
	if err != nil {
		return nil, fmt.Errorf("evmrpc: decode call result: %w", err)
	}
	if len(raw) < want*32 {
		return nil, fmt.Errorf("evmrpc: call result has %d bytes, want at least %d", len(raw), want*32)
	}
	words := make([][]byte, want)
	for i := range words {
		words[i] = raw[i*32 : (i+1)*32]
	}
	return words, nil
}

// wordToBig interprets a 32-byte word as an unsigned integer.
func wordToBig(w []byte) *big.Int {
	return new(big.Int).SetBytes(w)
}

// wordToString interprets a bytes32 word as a NUL-padded short string.
func wordToString(w []byte) string {
	return string(bytes.TrimRight(w, "\x00"))
}
