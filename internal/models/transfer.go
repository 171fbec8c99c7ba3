package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Counterparty sentinels used by upstream activity data.
const (
	// ExternalAddress marks an untracked off-venue counterparty.
	ExternalAddress = "external"
	// RedemptionSource marks a payout from market resolution.
	RedemptionSource = "market_redemption"
)

// TransferKind discriminates the three USD movements a wallet can make.
type TransferKind string

const (
	TransferDeposit    TransferKind = "DEPOSIT"
	TransferWithdrawal TransferKind = "WITHDRAWAL"
	TransferRedemption TransferKind = "REDEMPTION"
)

// Transfer is a USD movement into or out of a wallet.
//
// Counterparty is the other side of a deposit or withdrawal; it is
// ExternalAddress when the other side is not tracked and always empty for
// redemptions, whose source is the market itself.
type Transfer struct {
	Kind         TransferKind `json:"kind"`
	TxHash       string       `json:"tx_hash"`
	BlockNumber  int64        `json:"block_number"`
	Timestamp    time.Time    `json:"timestamp"`
	Wallet       string       `json:"wallet"`
	Counterparty string       `json:"counterparty,omitempty"`
	AmountUSD    float64      `json:"amount_usd"`
}

// NewDeposit creates an inbound funding transfer.
func NewDeposit(txHash string, ts time.Time, wallet, from string, amount float64) Transfer {
	return Transfer{
		Kind:         TransferDeposit,
		TxHash:       txHash,
		Timestamp:    ts,
		Wallet:       strings.ToLower(wallet),
		Counterparty: counterparty(from),
		AmountUSD:    amount,
	}
}

// NewWithdrawal creates an outbound transfer.
func NewWithdrawal(txHash string, ts time.Time, wallet, to string, amount float64) Transfer {
	return Transfer{
		Kind:         TransferWithdrawal,
		TxHash:       txHash,
		Timestamp:    ts,
		Wallet:       strings.ToLower(wallet),
		Counterparty: counterparty(to),
		AmountUSD:    amount,
	}
}

// NewRedemption creates a resolution payout to wallet.
func NewRedemption(txHash string, ts time.Time, wallet string, amount float64) Transfer {
	return Transfer{
		Kind:      TransferRedemption,
		TxHash:    txHash,
		Timestamp: ts,
		Wallet:    strings.ToLower(wallet),
		AmountUSD: amount,
	}
}

func counterparty(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return ExternalAddress
	}
	return addr
}

// TransferFromAddresses rebuilds a typed transfer from its stored
// (from, to) address pair as seen by wallet.
func TransferFromAddresses(wallet, from, to string) (TransferKind, string, error) {
	wallet, from, to = strings.ToLower(wallet), strings.ToLower(from), strings.ToLower(to)
	switch {
	case to == wallet && from == RedemptionSource:
		return TransferRedemption, "", nil
	case to == wallet:
		return TransferDeposit, counterparty(from), nil
	case from == wallet:
		return TransferWithdrawal, counterparty(to), nil
	default:
		return "", "", fmt.Errorf("transfer %s -> %s does not involve %s", from, to, wallet)
	}
}

// Addresses returns the (from, to) pair used when persisting the transfer.
func (t *Transfer) Addresses() (from, to string) {
	switch t.Kind {
	case TransferRedemption:
		return RedemptionSource, t.Wallet
	case TransferWithdrawal:
		return t.Wallet, counterparty(t.Counterparty)
	default:
		return counterparty(t.Counterparty), t.Wallet
	}
}

// Validate checks transfer field constraints.
func (t *Transfer) Validate() error {
	switch t.Kind {
	case TransferDeposit, TransferWithdrawal:
		if t.Counterparty == RedemptionSource {
			return fmt.Errorf("%s transfer cannot have the redemption source as counterparty", strings.ToLower(string(t.Kind)))
		}
	case TransferRedemption:
		if t.Counterparty != "" {
			return errors.New("redemption must not carry a counterparty")
		}
	default:
		return fmt.Errorf("unknown transfer kind %q", t.Kind)
	}
	if t.TxHash == "" {
		return errors.New("transfer tx hash must not be empty")
	}
	if t.Wallet == "" {
		return errors.New("transfer wallet must not be empty")
	}
	if t.AmountUSD < 0 {
		return errors.New("transfer USD amount must not be negative")
	}
	return nil
}
