package consensus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/liftedinit/powchain/internal/client"
	"github.com/liftedinit/powchain/internal/models"
)

// PeerStatus classifies the outcome of polling a peer.
type PeerStatus int

const (
	// PeerAccepted means the peer served a valid chain longer than the local one.
	PeerAccepted PeerStatus = iota
	// PeerRejected means the peer answered with a malformed, short or invalid chain.
	PeerRejected
	// PeerUnreachable means the peer could not be reached or did not answer in time.
	PeerUnreachable
)

func (s PeerStatus) String() string {
	switch s {
	case PeerAccepted:
		return "accepted"
	case PeerRejected:
		return "rejected"
	case PeerUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("PeerStatus(%d)", int(s))
	}
}

// PeerResult is the outcome of polling a single peer.
type PeerResult struct {
	Peer   string
	Status PeerStatus
	Err    error
	Chain  models.Chain
}

// Report converts the result to its API form.
func (r PeerResult) Report() models.PeerReport {
	report := models.PeerReport{
		Peer:        r.Peer,
		Status:      r.Status.String(),
		ChainLength: len(r.Chain),
	}
	if r.Err != nil {
		report.Reason = r.Err.Error()
	}
	return report
}

// Resolution is the outcome of one conflict resolution pass.
type Resolution struct {
	Replaced bool
	Results  []PeerResult
}

// ResolveConflicts polls every peer concurrently and replaces the local chain
// with the longest valid chain strictly longer than it. Ties go to the peer
// registered first. Peer failures are recorded and skipped; the only error
// returned is the cancellation of ctx.
func (e *Engine) ResolveConflicts(ctx context.Context) (bool, error) {
	res, err := e.Resolve(ctx)
	return res.Replaced, err
}

// Resolve runs a pass like ResolveConflicts and also returns the per-peer
// results of that pass, unaffected by passes running concurrently.
func (e *Engine) Resolve(ctx context.Context) (Resolution, error) {
	peers := e.Peers()
	localLen := e.Chain().Len()
	results := make([]PeerResult, len(peers))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(int(e.cfg.MaxConcurrency))
	for i, peer := range peers {
		eg.Go(func() error {
			results[i] = e.pollPeer(egCtx, peer, localLen)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}

	for _, r := range results {
		switch r.Status {
		case PeerRejected:
			e.peersRejected.Add(1)
			slog.Info("Peer chain rejected", "peer", r.Peer, "reason", r.Err)
		case PeerUnreachable:
			e.peersUnreachable.Add(1)
			slog.Debug("Peer unreachable", "peer", r.Peer, "error", r.Err)
		}
	}

	best := SelectCandidate(results)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastResolution = results
	res := Resolution{Results: slices.Clone(results)}

	if best == nil {
		slog.Debug("Local chain kept", "length", localLen, "peers", len(peers))
		return res, nil
	}
	if !e.replaceChain(best.Chain) {
		slog.Info("Candidate chain outgrown by local chain", "peer", best.Peer, "length", len(best.Chain))
		return res, nil
	}

	slog.Info("Local chain replaced", "peer", best.Peer, "previous_length", localLen, "length", len(best.Chain))
	res.Replaced = true
	return res, nil
}

// LastResolution returns the per-peer results of the most recent resolution pass.
func (e *Engine) LastResolution() []PeerResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.lastResolution)
}

// SelectCandidate returns the accepted result with the longest chain, keeping
// the first one seen among equally long chains, or nil if none was accepted.
func SelectCandidate(results []PeerResult) *PeerResult {
	var best *PeerResult
	for i := range results {
		r := &results[i]
		if r.Status != PeerAccepted {
			continue
		}
		if best == nil || len(r.Chain) > len(best.Chain) {
			best = r
		}
	}
	return best
}

func (e *Engine) pollPeer(ctx context.Context, peer string, localLen int) PeerResult {
	result := PeerResult{Peer: peer}
	if e.fetcher == nil {
		result.Status = PeerUnreachable
		result.Err = errors.New("no chain fetcher configured")
		return result
	}

	resp, err := e.fetcher.FetchChain(ctx, peer)
	if err != nil {
		result.Err = err
		if errors.Is(err, client.ErrMalformedResponse) {
			result.Status = PeerRejected
		} else {
			result.Status = PeerUnreachable
		}
		return result
	}

	if resp.ChainLength != len(resp.Chain) {
		result.Status = PeerRejected
		result.Err = fmt.Errorf("%w: chainLength %d does not match %d blocks", client.ErrMalformedResponse, resp.ChainLength, len(resp.Chain))
		return result
	}
	if resp.ChainLength <= localLen {
		result.Status = PeerRejected
		result.Err = fmt.Errorf("%w: %d <= %d", ErrChainNotLonger, resp.ChainLength, localLen)
		return result
	}

	chain := models.Chain(resp.Chain)
	if err := ValidateChain(e.cfg.Difficulty, chain); err != nil {
		result.Status = PeerRejected
		result.Err = err
		return result
	}

	result.Status = PeerAccepted
	result.Chain = chain
	return result
}
