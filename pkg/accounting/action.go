package accounting

import "github.com/ethersphere/beenode/pkg/internal/assert"

// ReceiveAction reserves price against a peer's balance the moment we
// decide to receive (download) a chunk from them, and either commits
// the debit on Apply or releases the reservation on Cancel. Exactly
// one of Apply/Cancel must be called (spec.md §4.6): "reserves price on
// creation ... on apply(), atomically balance -= price, reserved -=
// price; on drop without apply, reserved -= price."
type ReceiveAction struct {
	state   *peerState
	price   uint64
	settled bool
}

func newReceiveAction(state *peerState, price uint64) *ReceiveAction {
	state.addReserved(price)
	return &ReceiveAction{state: state, price: price}
}

// Apply commits the reserved debit: balance -= price, reserved -= price.
func (a *ReceiveAction) Apply() {
	assertNotSettled(a.settled, "ReceiveAction")
	a.settled = true
	a.state.addBalance(-int64(a.price))
	a.state.subReserved(a.price)
}

// Cancel releases the reservation without touching balance. Call this
// instead of Apply when the receive did not go through (stream error,
// protocol violation).
func (a *ReceiveAction) Cancel() {
	assertNotSettled(a.settled, "ReceiveAction")
	a.settled = true
	a.state.subReserved(a.price)
}

// ProvideAction is the symmetric counterpart of ReceiveAction for
// providing (uploading) a chunk to a peer, using shadow_reserved instead
// of reserved.
type ProvideAction struct {
	state   *peerState
	price   uint64
	settled bool
}

func newProvideAction(state *peerState, price uint64) *ProvideAction {
	state.addShadowReserved(price)
	return &ProvideAction{state: state, price: price}
}

// Apply commits the reserved credit: balance += price, shadow_reserved
// -= price.
func (a *ProvideAction) Apply() {
	assertNotSettled(a.settled, "ProvideAction")
	a.settled = true
	a.state.addBalance(int64(a.price))
	a.state.subShadowReserved(a.price)
}

// Cancel releases the shadow reservation without touching balance.
func (a *ProvideAction) Cancel() {
	assertNotSettled(a.settled, "ProvideAction")
	a.settled = true
	a.state.subShadowReserved(a.price)
}

func assertNotSettled(settled bool, kind string) {
	assert.Truef(!settled, "%s applied or cancelled twice", kind)
}
