package service

import (
	"context"

	"ledger-core/pkg/accounts"
	"ledger-core/pkg/ledger"
	"ledger-core/pkg/units"
)

// AccountView 签名账户 (不包含私钥)
type AccountView struct {
	Index   int                 `json:"index"`
	Address string              `json:"address"`
	Balance string              `json:"balance"`
	Pending *ledger.Reservation `json:"pending,omitempty"`
}

type accountService struct {
	store    *accounts.Store
	pipeline *ledger.Pipeline
}

func NewAccountService(store *accounts.Store, pipeline *ledger.Pipeline) AccountService {
	return &accountService{store: store, pipeline: pipeline}
}

// List 账户、链上余额以及保留中的 nonce
func (s *accountService) List(ctx context.Context) ([]AccountView, error) {
	accs := s.store.Accounts()
	out := make([]AccountView, len(accs))
	for i, acc := range accs {
		bal, err := s.pipeline.Gateway().Balance(ctx, acc.Address)
		if err != nil {
			return nil, err
		}
		out[i] = AccountView{Index: acc.Index, Address: acc.Address.Hex(), Balance: units.FromBaseUnits(bal)}
		r, ok, err := s.pipeline.PendingFor(ctx, acc.Address)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i].Pending = &r
		}
	}
	return out, nil
}

func (s *accountService) Reconcile(ctx context.Context, account int) (*ledger.ReconcileResult, error) {
	acc, err := s.store.Resolve(account)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Reconcile(ctx, acc.Address)
}

func (s *accountService) Abandon(ctx context.Context, account int) (*ledger.Reservation, error) {
	acc, err := s.store.Resolve(account)
	if err != nil {
		return nil, err
	}
	r, err := s.pipeline.Abandon(ctx, acc.Address)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
