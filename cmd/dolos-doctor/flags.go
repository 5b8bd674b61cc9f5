package main

import (
	"encoding/hex"
	"flag"
	"fmt"

	"github.com/containerman17/dolos-ledger/chain"
)

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

func decodeBlockHash(s string) (chain.BlockHash, error) {
	var h chain.BlockHash
	if s == "" {
		return h, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("decode hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}
