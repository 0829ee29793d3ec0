// Package executor implements C7: the verify-then-apply transaction
// pipeline that runs over a C3 snapshot overlay, including the injected
// smart-contract execution boundary and the conflict-group parallel
// scheduler (spec §4.7).
package executor

import (
	"context"

	"github.com/tos-network/tos-core/model"
)

// RequestedTransfer is a balance movement a contract asks the executor to
// perform on its behalf after a successful invocation (spec §4.7).
type RequestedTransfer struct {
	Destination [32]byte
	Asset       model.Hash
	Amount      uint64
}

// Event is an application-level log entry a contract invocation emits,
// carried through to the block's event sink (spec §4.7 step 4).
type Event struct {
	Contract model.Hash
	Topic    string
	Data     []byte
}

// StorageProvider is the read/write surface a ContractExecutor gets for
// one invocation's contract storage cells. Implementations read through
// to committed state and buffer writes the way C3's snapshot overlay
// does for account state; the executor discards the provider's buffered
// writes on any non-zero exit code (spec §4.7 step 3).
type StorageProvider interface {
	Get(cell string) ([]byte, bool, error)
	Set(cell string, value []byte)
	// Cache returns every cell this invocation wrote, for the caller to
	// merge into the block overlay on success.
	Cache() map[string][]byte
}

// ContractInvocation carries everything spec §4.7's execute(...) takes,
// minus the storage_provider argument (passed separately as a
// StorageProvider so the executor package never needs a VM-specific type
// parameter).
type ContractInvocation struct {
	Bytecode       []byte
	Topoheight     uint64
	Contract       model.Hash
	BlockHash      model.Hash
	BlockHeight    uint64
	BlockTimestamp uint64
	TxHash         model.Hash
	TxSender       [32]byte
	MaxGas         uint64
	Parameters     []byte
}

// ContractExecutionResult is what an invocation returns (spec §4.7 step 3).
type ContractExecutionResult struct {
	GasUsed    uint64
	ExitCode   uint32
	ReturnData []byte
	Transfers  []RequestedTransfer
	Events     []Event
}

// ContractExecutor is the injection boundary spec §4.7 requires: no VM
// details live in this package, only the three methods below. The
// surrounding process binds a concrete implementation at construction
// (spec §4.7, §9's "dynamic dispatch (contract executor)" design note).
type ContractExecutor interface {
	SupportsFormat(bytecode []byte) bool
	Execute(ctx context.Context, inv ContractInvocation, storage StorageProvider) (*ContractExecutionResult, error)
	Name() string
}

// NoOpExecutor is the core's own ContractExecutor: it recognises nothing
// and fails every execution, so a process that never binds a real VM
// still has a well-defined (and safe) default (spec §4.7: "the core
// ships a NoOpExecutor that fails any execution").
type NoOpExecutor struct{}

func (NoOpExecutor) SupportsFormat([]byte) bool { return false }

func (NoOpExecutor) Execute(context.Context, ContractInvocation, StorageProvider) (*ContractExecutionResult, error) {
	return nil, errUnsupportedExecutor
}

func (NoOpExecutor) Name() string { return "noop" }
