package core

import (
	"fmt"
	"math/big"

	"github.com/clydemeng/sweeper/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
)

// StateProcessor applies sponsor messages to a state. Go-native contracts,
// such as sweep engine deployments, are installed with Deploy; accounts reach
// them through EIP-7702 delegation.
type StateProcessor struct {
	config   *params.ChainConfig // Chain configuration options
	registry *vm.Registry        // Deployed Go-native contracts
}

// NewStateProcessor initialises a new StateProcessor.
func NewStateProcessor(config *params.ChainConfig) *StateProcessor {
	return &StateProcessor{
		config:   config,
		registry: vm.NewRegistry(),
	}
}

// Deploy installs a contract at addr.
func (p *StateProcessor) Deploy(addr common.Address, contract vm.Contract) {
	p.registry.Register(addr, contract)
	log.Info("Deployed contract", "address", addr, "type", fmt.Sprintf("%T", contract))
}

// Config returns the chain configuration.
func (p *StateProcessor) Config() *params.ChainConfig { return p.config }

// ProcessResult contains the values computed by Process.
type ProcessResult struct {
	Receipts types.Receipts
	Logs     []*types.Log
	GasUsed  uint64
	Traces   [][]vm.CallMetadata
}

// Process applies the messages in order on top of statedb, as if they were
// the transactions of the block described by header. It returns an error if
// any message cannot be included; a message whose call fails still produces
// a receipt with failed status.
func (p *StateProcessor) Process(header *types.Header, statedb *state.StateDB, msgs []*Message) (*ProcessResult, error) {
	var (
		receipts  = make(types.Receipts, 0, len(msgs))
		traces    = make([][]vm.CallMetadata, 0, len(msgs))
		usedGas   uint64
		allLogs   []*types.Log
		blockHash = header.Hash()
		gp        = new(GasPool).AddGas(header.GasLimit)
		adapter   = vm.NewStateDB(statedb)
		rules     = p.config.Rules(header.Number, header.Difficulty == nil || header.Difficulty.Sign() == 0, header.Time)
		block     = vm.BlockContext{
			Number:   header.Number.Uint64(),
			Time:     header.Time,
			ChainID:  p.config.ChainID,
			Coinbase: header.Coinbase,
		}
	)
	log.Debug("Processing messages", "block", block.Number, "fork", vm.ForkName(p.config, block.Number, block.Time), "count", len(msgs))

	for i, msg := range msgs {
		hash := msg.Hash()
		statedb.SetTxContext(hash, i)
		// Prepare also clears EIP-1153 transient storage.
		statedb.Prepare(rules, msg.From, header.Coinbase, msg.To, nil, nil)
		adapter.ResetLogs()

		result, err := p.ApplyMessage(msg, block, adapter, gp)
		if err != nil {
			return nil, fmt.Errorf("could not apply message %d [%v]: %w", i, hash.Hex(), err)
		}
		if result.Failed() {
			log.Warn("Message execution failed", "block", block.Number, "index", i, "hash", hash, "from", msg.From, "err", result.Err)
		}
		statedb.Finalise(true)
		usedGas += result.UsedGas

		receipt := MakeReceipt(msg, result, adapter.Logs(), header.Number, blockHash, hash, i, usedGas, uint(len(allLogs)))
		receipts = append(receipts, receipt)
		traces = append(traces, result.Trace)
		allLogs = append(allLogs, receipt.Logs...)
	}
	return &ProcessResult{
		Receipts: receipts,
		Logs:     allLogs,
		GasUsed:  usedGas,
		Traces:   traces,
	}, nil
}

// MakeReceipt generates the receipt object for a message given its execution
// result. logIndex is the block-wide index of the first log.
func MakeReceipt(msg *Message, result *ExecutionResult, logs []*types.Log, blockNumber *big.Int, blockHash, txHash common.Hash, txIndex int, cumulativeGasUsed uint64, logIndex uint) *types.Receipt {
	receipt := &types.Receipt{Type: msg.Type(), CumulativeGasUsed: cumulativeGasUsed}
	if result.Failed() {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	receipt.TxHash = txHash
	receipt.GasUsed = result.UsedGas
	receipt.EffectiveGasPrice = u256(msg.GasPrice).ToBig()

	receipt.Logs = make([]*types.Log, 0, len(logs))
	for i, l := range logs {
		l.TxHash = txHash
		l.TxIndex = uint(txIndex)
		l.BlockHash = blockHash
		l.BlockNumber = blockNumber.Uint64()
		l.Index = logIndex + uint(i)
		receipt.Logs = append(receipt.Logs, l)
	}
	receipt.Bloom = logsBloom(receipt.Logs)
	receipt.BlockHash = blockHash
	receipt.BlockNumber = new(big.Int).Set(blockNumber)
	receipt.TransactionIndex = uint(txIndex)
	return receipt
}

func logsBloom(logs []*types.Log) types.Bloom {
	var bloom types.Bloom
	for _, l := range logs {
		bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			bloom.Add(topic[:])
		}
	}
	return bloom
}
