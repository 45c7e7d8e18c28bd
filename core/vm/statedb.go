package vm

import (
	"sort"

	"github.com/clydemeng/sweeper/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// StateDB is the slice of account state a sweep and its dispatched calls may
// touch. Every mutation made through it is covered by Snapshot/RevertToSnapshot.
type StateDB interface {
	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason)
	SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason)

	GetCode(addr common.Address) []byte

	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key, value common.Hash)

	GetTransientState(addr common.Address, key common.Hash) common.Hash
	SetTransientState(addr common.Address, key, value common.Hash)

	AddLog(log *types.Log)

	Snapshot() int
	RevertToSnapshot(revid int)
}

// StateAdapter implements StateDB on top of a go-ethereum StateDB. It keeps its
// own copy of the logs emitted through it so that callers can read back the
// logs of one message without depending on the tx-context bookkeeping of the
// underlying database. The log journal is trimmed on revert.
type StateAdapter struct {
	db *state.StateDB

	logs []*types.Log
	// marks records the log count at snapshot time, ordered by snapshot id.
	// A mark covers every later snapshot taken at the same log count, so the
	// list grows with the number of logs, not the number of snapshots.
	marks []logMark
}

type logMark struct {
	id   int
	logs int
}

// NewStateDB wraps a go-ethereum StateDB.
func NewStateDB(db *state.StateDB) *StateAdapter {
	return &StateAdapter{db: db}
}

// Inner returns the wrapped go-ethereum StateDB.
func (s *StateAdapter) Inner() *state.StateDB { return s.db }

func (s *StateAdapter) GetBalance(addr common.Address) *uint256.Int {
	return s.db.GetBalance(addr)
}

func (s *StateAdapter) AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) {
	s.db.AddBalance(addr, amount, reason.Geth())
}

func (s *StateAdapter) SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) {
	s.db.SubBalance(addr, amount, reason.Geth())
}

func (s *StateAdapter) GetCode(addr common.Address) []byte {
	return s.db.GetCode(addr)
}

func (s *StateAdapter) GetState(addr common.Address, key common.Hash) common.Hash {
	return s.db.GetState(addr, key)
}

func (s *StateAdapter) SetState(addr common.Address, key, value common.Hash) {
	s.db.SetState(addr, key, value)
}

func (s *StateAdapter) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return s.db.GetTransientState(addr, key)
}

func (s *StateAdapter) SetTransientState(addr common.Address, key, value common.Hash) {
	s.db.SetTransientState(addr, key, value)
}

func (s *StateAdapter) AddLog(log *types.Log) {
	s.db.AddLog(log)
	s.logs = append(s.logs, log)
}

func (s *StateAdapter) Snapshot() int {
	id := s.db.Snapshot()
	if n := len(s.marks); n == 0 || s.marks[n-1].logs < len(s.logs) {
		s.marks = append(s.marks, logMark{id: id, logs: len(s.logs)})
	}
	return id
}

func (s *StateAdapter) RevertToSnapshot(revid int) {
	s.db.RevertToSnapshot(revid)

	// The covering mark is the last one taken at or before revid; later
	// marks belong to snapshots that are invalid now.
	i := sort.Search(len(s.marks), func(i int) bool { return s.marks[i].id > revid })
	if i == 0 {
		return
	}
	if n := s.marks[i-1].logs; n <= len(s.logs) {
		s.logs = s.logs[:n]
	}
	s.marks = s.marks[:i]
}

// Logs returns the logs emitted since the last call to ResetLogs.
func (s *StateAdapter) Logs() []*types.Log {
	return append([]*types.Log(nil), s.logs...)
}

// ResetLogs clears the log journal, typically between two messages.
func (s *StateAdapter) ResetLogs() {
	s.logs = nil
	s.marks = s.marks[:0]
}
