package ledgertest

import (
	"math/big"

	"ledger-core/internal/contract"

	"github.com/ethereum/go-ethereum/common"
)

// RevertError 与节点返回的 JSON-RPC 错误形态一致 (code 3 = execution reverted)
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string { return "execution reverted: " + e.Reason }

func (e *RevertError) ErrorCode() int { return 3 }

func revert(reason string) error { return &RevertError{Reason: reason} }

// applyLocked 执行一次调用；commit=false 时只校验 (eth_estimateGas / eth_call)
func (f *FakeLedger) applyLocked(from, to common.Address, value *big.Int, data []byte, commit bool) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 && f.balanceLocked(from).Cmp(value) < 0 {
		return nil, revert("insufficient funds for transfer")
	}

	if to != f.contract {
		if commit {
			f.moveLocked(from, to, value)
		}
		return nil, nil
	}

	if len(data) < 4 {
		return nil, revert("fallback not supported")
	}
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return nil, revert("unknown selector")
	}
	if value.Sign() > 0 && !method.IsPayable() {
		return nil, revert("non-payable function")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, revert("malformed call data")
	}

	switch method.Name {
	case contract.MethodGetBalance:
		return method.Outputs.Pack(new(big.Int).Set(f.balanceLocked(f.contract)))

	case contract.MethodGetTransactions:
		out := make([]contract.ExamenTransaction, len(f.transfers))
		for i, t := range f.transfers {
			out[i] = contract.ExamenTransaction{
				TxId:          big.NewInt(int64(i)),
				To:            t.to,
				Amount:        new(big.Int).Set(t.amount),
				ApprovalCount: big.NewInt(int64(len(t.approvals))),
				Executed:      t.executed,
			}
		}
		return method.Outputs.Pack(out)

	case contract.MethodGetTransactionApprovals:
		t, err := f.transferLocked(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		out := make([]contract.ExamenApproval, len(t.approvals))
		copy(out, t.approvals)
		return method.Outputs.Pack(out)

	case contract.MethodGetAllProducts:
		out := make([]contract.ExamenProduct, len(f.products))
		for i, p := range f.products {
			out[i] = contract.ExamenProduct{
				Id:        big.NewInt(int64(i)),
				ProductId: new(big.Int).Set(p.productID),
				Name:      p.name,
				Price:     new(big.Int).Set(p.price),
				Seller:    p.seller,
				Active:    p.active,
			}
		}
		return method.Outputs.Pack(out)

	case contract.MethodSubmitTransaction:
		if !f.owners[from] {
			return nil, revert("not owner")
		}
		if commit {
			f.transfers = append(f.transfers, &transfer{
				to:       args[0].(common.Address),
				amount:   new(big.Int).Set(args[1].(*big.Int)),
				approved: make(map[common.Address]bool),
			})
		}

	case contract.MethodApproveTransaction:
		if !f.owners[from] {
			return nil, revert("not owner")
		}
		t, err := f.transferLocked(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if t.executed {
			return nil, revert("transaction already executed")
		}
		if t.approved[from] {
			return nil, revert("transaction already approved")
		}
		if commit {
			t.approved[from] = true
			t.approvals = append(t.approvals, contract.ExamenApproval{
				Approver:   from,
				Timestamp:  big.NewInt(f.now().Unix()),
				ApprovalId: big.NewInt(int64(len(t.approvals))),
			})
		}

	case contract.MethodExecuteTransaction:
		if !f.owners[from] {
			return nil, revert("not owner")
		}
		t, err := f.transferLocked(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if t.executed {
			return nil, revert("transaction already executed")
		}
		if int64(len(t.approvals)) < f.required {
			return nil, revert("not enough approvals")
		}
		if f.balanceLocked(f.contract).Cmp(t.amount) < 0 {
			return nil, revert("insufficient contract balance")
		}
		if commit {
			f.moveLocked(f.contract, t.to, t.amount)
			t.executed = true
		}

	case contract.MethodDeposit:
		if value.Sign() == 0 {
			return nil, revert("deposit must be greater than zero")
		}
		if commit {
			f.moveLocked(from, f.contract, value)
		}

	case contract.MethodReleasePayments:
		if !f.owners[from] {
			return nil, revert("not owner")
		}
		pool := f.balanceLocked(f.contract)
		if pool.Sign() == 0 {
			return nil, revert("no funds to release")
		}
		if commit {
			var total int64
			for _, s := range f.shares {
				total += s
			}
			snapshot := new(big.Int).Set(pool)
			for i, payee := range f.payees {
				part := new(big.Int).Mul(snapshot, big.NewInt(f.shares[i]))
				part.Div(part, big.NewInt(total))
				f.moveLocked(f.contract, payee, part)
			}
		}

	case contract.MethodAddProduct:
		if commit {
			f.products = append(f.products, &product{
				productID: big.NewInt(int64(len(f.products) + 1)),
				name:      args[0].(string),
				price:     new(big.Int).Set(args[1].(*big.Int)),
				seller:    from,
				active:    true,
			})
		}

	case contract.MethodUpdateProduct:
		p, err := f.productLocked(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if p.seller != from {
			return nil, revert("only seller")
		}
		if commit {
			p.name = args[1].(string)
			p.price = new(big.Int).Set(args[2].(*big.Int))
			p.active = args[3].(bool)
		}

	case contract.MethodDisableProduct:
		p, err := f.productLocked(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if p.seller != from {
			return nil, revert("only seller")
		}
		if commit {
			p.active = false
		}

	case contract.MethodBuyProduct:
		p, err := f.productLocked(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if !p.active {
			return nil, revert("product not active")
		}
		if value.Cmp(p.price) != 0 {
			return nil, revert("incorrect value")
		}
		if commit {
			f.moveLocked(from, p.seller, value)
		}

	default:
		return nil, revert("unknown method " + method.Name)
	}
	return nil, nil
}

func (f *FakeLedger) transferLocked(id *big.Int) (*transfer, error) {
	if !id.IsInt64() || id.Int64() < 0 || id.Int64() >= int64(len(f.transfers)) {
		return nil, revert("transaction does not exist")
	}
	return f.transfers[id.Int64()], nil
}

func (f *FakeLedger) productLocked(id *big.Int) (*product, error) {
	if !id.IsInt64() || id.Int64() < 0 || id.Int64() >= int64(len(f.products)) {
		return nil, revert("product does not exist")
	}
	return f.products[id.Int64()], nil
}

func (f *FakeLedger) moveLocked(from, to common.Address, value *big.Int) {
	if value.Sign() == 0 {
		return
	}
	f.balanceLocked(from).Sub(f.balanceLocked(from), value)
	f.balanceLocked(to).Add(f.balanceLocked(to), value)
}
