package actors

import (
	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/runner/actorvm"
)

const (
	// withdrawSlack is the rounding allowance withdrawals are checked
	// against.
	withdrawSlack = 10
	initialCredit = 100
	maxMemoLen    = 64
)

const (
	ErrZeroDeposit     exitcode.ExitCode = exitcode.FirstActorSpecificExitCode + iota
	ErrVaultPaused
	ErrInvariantBroken
)

// VaultLimits configures deposits.
type VaultLimits struct {
	MaxDeposit uint64
	Paused     bool
}

// Vault keeps per-caller balances. Its withdrawal check allows a small
// overdraft, which wraps the balance around.
type Vault struct {
	balances map[types.Address]uint64
	total    uint64
	limits   VaultLimits
	memos    [16][]byte
}

func NewVault() *Vault {
	return &Vault{balances: make(map[types.Address]uint64)}
}

func (v *Vault) Exports() map[string]interface{} {
	return map[string]interface{}{
		"fuzz_init":      v.Init,
		"fuzz_withdraw":  v.FuzzWithdraw,
		"fuzz_configure": v.Configure,
		"deposit":        v.Deposit,
		"withdraw":       v.Withdraw,
		"set_memo":       v.SetMemo,
		"balance":        v.Balance,
	}
}

func (v *Vault) Init(rt actorvm.Runtime) {
	rt.Charge(rt.Pricelist().OnStorage(8))
	v.balances[rt.Caller()] = initialCredit
	v.total = initialCredit
}

func (v *Vault) Configure(rt actorvm.Runtime, limits VaultLimits) {
	rt.Charge(rt.Pricelist().OnStorage(9))
	v.limits = limits
}

func (v *Vault) Deposit(rt actorvm.Runtime, amount uint64) {
	if v.limits.Paused {
		rt.Abortf(ErrVaultPaused, "vault is paused")
	}
	if amount == 0 {
		rt.Abortf(ErrZeroDeposit, "zero deposit")
	}
	if v.limits.MaxDeposit != 0 && amount > v.limits.MaxDeposit {
		rt.Abortf(exitcode.ErrIllegalArgument, "deposit above limit")
	}
	// bookkeeping cost grows with the amount
	rt.Charge(rt.Pricelist().OnCompute(int64(amount / 10)))
	rt.Charge(rt.Pricelist().OnStorage(16))

	caller := rt.Caller()
	v.balances[caller] += amount
	v.total += amount
}

func (v *Vault) Withdraw(rt actorvm.Runtime, amount uint64) error {
	caller := rt.Caller()
	bal := v.balances[caller]
	if amount > bal+withdrawSlack {
		return actorvm.Newf(exitcode.ErrInsufficientFunds, "insufficient funds")
	}
	rt.Charge(rt.Pricelist().OnStorage(16))

	v.balances[caller] = bal - amount
	if v.balances[caller] > bal {
		rt.Abortf(ErrInvariantBroken, "balance grew on withdrawal")
	}
	v.total -= amount
	return nil
}

// FuzzWithdraw withdraws a share of the caller's balance.
func (v *Vault) FuzzWithdraw(rt actorvm.Runtime, amount uint64) error {
	bal := v.balances[rt.Caller()]
	return v.Withdraw(rt, amount%(bal+1))
}

func (v *Vault) SetMemo(rt actorvm.Runtime, memo []byte) {
	if len(memo) > maxMemoLen {
		rt.Abortf(exitcode.ErrIllegalArgument, "memo too long")
	}
	rt.Charge(rt.Pricelist().OnStorage(len(memo)))
	// the first byte selects the slot; it is not range checked
	slot := memo[0]
	v.memos[slot] = append([]byte(nil), memo[1:]...)
}

func (v *Vault) Balance(rt actorvm.Runtime, who types.Address) uint64 {
	rt.Charge(rt.Pricelist().OnStorage(8))
	return v.balances[who]
}
