package executor

import (
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/accountstate"
)

// baseBlockReward and halvingInterval give a Bitcoin-style halving
// schedule keyed on blue_score rather than height, since blue_score is
// this DAG's monotonically increasing block-count analogue (spec §4.5).
const (
	baseBlockReward = 50_00000000 // 50 TOS, 8 decimal places
	halvingInterval = 210_000
)

// RewardSchedule returns the primary block reward for a block at the
// given blue_score.
func RewardSchedule(blueScore uint64) uint64 {
	halvings := blueScore / halvingInterval
	if halvings >= 64 {
		return 0
	}
	return baseBlockReward >> halvings
}

// HeaderReader resolves a block hash to its header, used only to find the
// miner public key of mergeset-blue blocks for the merge-mining bonus
// below. blockprocessor supplies this backed by C3; nil disables the
// bonus without affecting the primary reward.
type HeaderReader func(model.Hash) (*model.BlockHeader, error)

// mergesetBlueBonusBasisPoints is the fraction of the primary reward
// split evenly among a block's mergeset-blue contributors other than its
// own miner (spec §4.7: "rewards computed by GHOSTDAG (blue block
// selected-parent-chain contribution)"). The spec names the mechanism —
// blue mergeset membership feeding into reward — without a split
// percentage; this value is a fixed constant of this implementation.
const mergesetBlueBonusBasisPoints = 1000 // 10%, split across all other blues

type rewardWriter interface {
	accountstate.Reader
	accountstate.Writer
}

// ApplyRewards credits the block's miner with its primary reward and, if
// headerReader is non-nil, splits a small bonus among the miners of the
// block's other mergeset-blue contributors (spec §4.7's coinbase/reward
// step, which runs after every transaction in the block has applied).
func ApplyRewards(rw rewardWriter, header *model.BlockHeader, ghostdag *model.GhostdagData, headerReader HeaderReader, topoheight uint64) error {
	reward := RewardSchedule(ghostdag.BlueScore)
	if reward == 0 {
		return nil
	}

	bonusPool := burnBasisPoints(reward, mergesetBlueBonusBasisPoints)
	primary := reward - bonusPool

	if err := creditReward(rw, header.Miner, model.ZeroHash, primary, topoheight); err != nil {
		return err
	}

	others := otherBlues(ghostdag, header.Hash())
	if len(others) == 0 || headerReader == nil {
		return creditReward(rw, header.Miner, model.ZeroHash, bonusPool, topoheight)
	}

	share := bonusPool / uint64(len(others))
	for _, h := range others {
		minerHeader, err := headerReader(h)
		if err != nil {
			return err
		}
		if err := creditReward(rw, minerHeader.Miner, model.ZeroHash, share, topoheight); err != nil {
			return err
		}
	}
	return nil
}

func otherBlues(ghostdag *model.GhostdagData, self model.Hash) []model.Hash {
	out := make([]model.Hash, 0, len(ghostdag.MergesetBlues))
	for _, h := range ghostdag.MergesetBlues {
		if h != self && h != ghostdag.SelectedParent {
			out = append(out, h)
		}
	}
	return out
}

func creditReward(rw rewardWriter, miner [32]byte, asset model.Hash, amount uint64, topoheight uint64) error {
	if amount == 0 {
		return nil
	}
	account, found, err := accountstate.ReadAccount(rw, miner)
	if err != nil {
		return err
	}
	if !found {
		account = model.NewAccount(miner)
	}
	account.Balances[asset] += amount
	return accountstate.WriteAccount(rw, account, topoheight)
}
