package keyvault

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/vault/shamir"
)

// The master seed that seals user keys is never stored whole on disk in
// shared deployments: it is split into Shamir shares held by operators and
// recombined at boot. Single-operator setups pass the seed directly instead.

// SplitSeed splits a master seed into shares, threshold of which suffice to
// reconstruct it.
func SplitSeed(seed []byte, shares, threshold int) ([][]byte, error) {
	if len(seed) < 32 {
		return nil, errors.New("master seed must be at least 32 bytes")
	}
	if threshold < 2 || threshold > shares {
		return nil, fmt.Errorf("invalid threshold %d for %d shares", threshold, shares)
	}

	parts, err := shamir.Split(seed, shares, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split master seed: %w", err)
	}
	return parts, nil
}

// CombineSeed reconstructs the master seed from at least threshold shares.
func CombineSeed(shares [][]byte) ([]byte, error) {
	if len(shares) < 2 {
		return nil, errors.New("at least two shares are required")
	}

	seed, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("failed to combine seed shares: %w", err)
	}
	return seed, nil
}

// ReadShareFile parses a share file: one hex-encoded share per line, blank
// lines and #-comments ignored.
func ReadShareFile(r io.Reader) ([][]byte, error) {
	var shares [][]byte

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		share, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("invalid share %q: %w", line, err)
		}
		shares = append(shares, share)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shares: %w", err)
	}

	return shares, nil
}
