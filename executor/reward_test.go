package executor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tos-network/tos-core/model"
	"github.com/tos-network/tos-core/stores/accountstate"
	"github.com/tos-network/tos-core/stores/versioned/memory"
)

func TestRewardScheduleHalves(t *testing.T) {
	require.Equal(t, uint64(baseBlockReward), RewardSchedule(0))
	require.Equal(t, uint64(baseBlockReward/2), RewardSchedule(halvingInterval))
	require.Equal(t, uint64(baseBlockReward/4), RewardSchedule(2*halvingInterval))
}

func TestRewardScheduleExhausted(t *testing.T) {
	require.Equal(t, uint64(0), RewardSchedule(64*halvingInterval))
}

func TestApplyRewardsCreditsMinerWithoutHeaderReader(t *testing.T) {
	store := memory.New()
	miner := [32]byte{7}
	header := &model.BlockHeader{Miner: miner}
	ghostdag := &model.GhostdagData{BlueScore: 0}

	require.NoError(t, ApplyRewards(store, header, ghostdag, nil, 1))

	acc, found, err := accountstate.ReadAccount(store, miner)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(baseBlockReward), acc.Balances[model.ZeroHash])
}

func TestApplyRewardsSplitsMergesetBonus(t *testing.T) {
	store := memory.New()
	miner, other := [32]byte{7}, [32]byte{8}

	header := &model.BlockHeader{Miner: miner, ParentsByLevel: []model.Hash{model.ZeroHash}}
	otherHeader := &model.BlockHeader{Miner: other, ParentsByLevel: []model.Hash{model.ZeroHash}}
	otherHash := otherHeader.Hash()

	ghostdag := &model.GhostdagData{
		BlueScore:     0,
		MergesetBlues: []model.Hash{otherHash},
	}

	headerReader := func(h model.Hash) (*model.BlockHeader, error) {
		if h == otherHash {
			return otherHeader, nil
		}
		return nil, nil
	}

	require.NoError(t, ApplyRewards(store, header, ghostdag, headerReader, 1))

	minerAcc, _, err := accountstate.ReadAccount(store, miner)
	require.NoError(t, err)
	otherAcc, _, err := accountstate.ReadAccount(store, other)
	require.NoError(t, err)

	bonus := burnBasisPoints(baseBlockReward, mergesetBlueBonusBasisPoints)
	require.Equal(t, uint64(baseBlockReward)-bonus, minerAcc.Balances[model.ZeroHash])
	require.Equal(t, bonus, otherAcc.Balances[model.ZeroHash])
}
