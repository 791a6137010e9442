package consensus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/liftedinit/powchain/internal/models"
)

// DefaultDifficulty is the number of leading '0' hex characters a proof digest needs.
const DefaultDifficulty = 4

// MaxDifficulty is the length of a hex encoded SHA-256 digest.
const MaxDifficulty = sha256.Size * 2

// cancelCheckInterval is how many proof candidates are tried between context checks.
const cancelCheckInterval = 1024

// CheckProofOfWork reports whether sha256(lastProof || proof || lastHash), hex
// encoded, starts with difficulty '0' characters. Numbers are concatenated in
// decimal form.
func CheckProofOfWork(difficulty int, lastProof, proof uint64, lastHash string) bool {
	buf := make([]byte, 0, 40+len(lastHash))
	buf = strconv.AppendUint(buf, lastProof, 10)
	buf = strconv.AppendUint(buf, proof, 10)
	buf = append(buf, lastHash...)

	sum := sha256.Sum256(buf)
	digest := hex.EncodeToString(sum[:])
	return strings.HasPrefix(digest, strings.Repeat("0", difficulty))
}

// GenerateProofOfWork searches proofs upward from zero until one satisfies
// CheckProofOfWork against lastBlock. The search has no upper bound; it stops
// early only when ctx is done.
func GenerateProofOfWork(ctx context.Context, difficulty int, lastBlock *models.Block) (uint64, error) {
	lastProof, lastHash := lastBlock.Proof, lastBlock.Hash
	for proof := uint64(0); ; proof++ {
		if proof%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if CheckProofOfWork(difficulty, lastProof, proof, lastHash) {
			return proof, nil
		}
	}
}
