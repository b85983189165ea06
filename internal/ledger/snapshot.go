package ledger

import "github.com/atmx/contracts-engine/internal/model"

// DumpState returns a copy of every account, for the "economy" key of the
// whole-engine snapshot document.
func (l *Ledger) DumpState() []model.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		out = append(out, copyAccount(acct))
	}
	return out
}

// LoadState replaces every account with a previously dumped snapshot.
func (l *Ledger) LoadState(accounts []model.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts = make(map[int64]*model.Account, len(accounts))
	for _, acct := range accounts {
		stored := copyAccount(&acct)
		l.accounts[acct.UserId] = &stored
	}
}
