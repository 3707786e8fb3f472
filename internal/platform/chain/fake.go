package chain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Fake is an in-memory AccessContract for development mode and tests.
// Submitted transactions start pending and confirm after ConfirmAfter polls
// (immediately by default).
type Fake struct {
	mu           sync.Mutex
	grants       map[string]map[string]bool // tokenID -> lowercased address set
	txs          map[string]*fakeTx
	seq          int
	ConfirmAfter int
	FailNext     bool
}

type fakeTx struct {
	tokenID string
	grantee string
	revoke  bool
	state   TxState
	polls   int
}

// NewFake creates an empty in-memory contract.
func NewFake() *Fake {
	return &Fake{
		grants: make(map[string]map[string]bool),
		txs:    make(map[string]*fakeTx),
	}
}

func (f *Fake) Grant(_ context.Context, tokenID, grantee string) (string, error) {
	return f.submit(tokenID, grantee, false)
}

func (f *Fake) Revoke(_ context.Context, tokenID, grantee string) (string, error) {
	return f.submit(tokenID, grantee, true)
}

func (f *Fake) submit(tokenID, grantee string, revoke bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailNext {
		f.FailNext = false
		return "", fmt.Errorf("chain: submission rejected")
	}

	f.seq++
	hash := fmt.Sprintf("0xfake%08d", f.seq)
	f.txs[hash] = &fakeTx{
		tokenID: tokenID,
		grantee: strings.ToLower(grantee),
		revoke:  revoke,
		state:   TxPending,
	}
	return hash, nil
}

func (f *Fake) HasAccess(_ context.Context, tokenID, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[tokenID][strings.ToLower(address)], nil
}

func (f *Fake) GrantedAddresses(_ context.Context, tokenID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var addrs []string
	for addr, ok := range f.grants[tokenID] {
		if ok {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)
	return addrs, nil
}

// TxStatus advances pending transactions toward confirmation. On confirmation
// the grant set is mutated, mirroring how a real contract's state only changes
// once the transaction lands.
func (f *Fake) TxStatus(_ context.Context, txHash string) (TxState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx, ok := f.txs[txHash]
	if !ok {
		return TxUnknown, nil
	}
	if tx.state != TxPending {
		return tx.state, nil
	}

	tx.polls++
	if tx.polls <= f.ConfirmAfter {
		return TxPending, nil
	}

	tx.state = TxConfirmed
	if tx.revoke {
		delete(f.grants[tx.tokenID], tx.grantee)
	} else {
		if f.grants[tx.tokenID] == nil {
			f.grants[tx.tokenID] = make(map[string]bool)
		}
		f.grants[tx.tokenID][tx.grantee] = true
	}
	return TxConfirmed, nil
}

// FailTx marks a pending transaction as failed.
func (f *Fake) FailTx(txHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.txs[txHash]; ok {
		tx.state = TxFailed
	}
}
