package lnd

import (
	"encoding/base64"
	"encoding/hex"
)

// Info is the subset of GetInfo the client uses
type Info struct {
	IdentityPubkey string `json:"identity_pubkey"`
	Alias          string `json:"alias"`
	Version        string `json:"version"`
	BlockHeight    uint32 `json:"block_height"`
	SyncedToChain  bool   `json:"synced_to_chain"`
}

// Amount is a balance expressed in both units
type Amount struct {
	Sat  uint64 `json:"sat,string"`
	Msat uint64 `json:"msat,string"`
}

// ChannelBalance reports funds held in channels
type ChannelBalance struct {
	LocalBalance             Amount `json:"local_balance"`
	RemoteBalance            Amount `json:"remote_balance"`
	PendingOpenLocalBalance  Amount `json:"pending_open_local_balance"`
	PendingOpenRemoteBalance Amount `json:"pending_open_remote_balance"`
}

// Invoice is the node's answer to an invoice creation
type Invoice struct {
	RHash          []byte `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
	AddIndex       uint64 `json:"add_index,string"`
	PaymentAddr    []byte `json:"payment_addr"`
}

// RHashURLSafe returns the payment hash in the form subscription paths take
func (i *Invoice) RHashURLSafe() string {
	return base64.URLEncoding.EncodeToString(i.RHash)
}

// RHashHex returns the payment hash as hex
func (i *Invoice) RHashHex() string {
	return hex.EncodeToString(i.RHash)
}

// HodlInvoice is the node's answer to a hold invoice creation
type HodlInvoice struct {
	PaymentRequest string `json:"payment_request"`
	AddIndex       uint64 `json:"add_index,string"`
	PaymentAddr    []byte `json:"payment_addr"`
}

// HodlState is the lifecycle state of an invoice
type HodlState string

const (
	StateOpen     HodlState = "OPEN"
	StateAccepted HodlState = "ACCEPTED"
	StateCanceled HodlState = "CANCELED"
	StateSettled  HodlState = "SETTLED"
)

// Final reports whether no further transition can happen
func (s HodlState) Final() bool {
	return s == StateSettled || s == StateCanceled
}

// InvoiceState is one update of an invoice subscription
type InvoiceState struct {
	Settled        bool      `json:"settled"`
	State          HodlState `json:"state"`
	RHash          string    `json:"r_hash"`
	PaymentRequest string    `json:"payment_request"`
	AmtPaidSat     int64     `json:"amt_paid_sat,string,omitempty"`
}

// PaymentRequest asks the router to pay a BOLT-11 request
type PaymentRequest struct {
	PaymentRequest   string `json:"payment_request"`
	TimeoutSeconds   int32  `json:"timeout_seconds"`
	FeeLimitSat      int64  `json:"fee_limit_sat,string"`
	AllowSelfPayment bool   `json:"allow_self_payment"`
}

// PaymentStatus is the router's view of an outgoing payment
type PaymentStatus string

const (
	PaymentUnknown   PaymentStatus = "UNKNOWN"
	PaymentInitiated PaymentStatus = "INITIATED"
	PaymentInFlight  PaymentStatus = "IN_FLIGHT"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Final reports whether the payment reached a terminal status
func (s PaymentStatus) Final() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

// PaymentResponse is one update of an outgoing payment
type PaymentResponse struct {
	PaymentHash     string        `json:"payment_hash"`
	PaymentPreimage string        `json:"payment_preimage"`
	Status          PaymentStatus `json:"status"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	ValueSat        int64         `json:"value_sat,string,omitempty"`
	FeeSat          int64         `json:"fee_sat,string,omitempty"`
}

// NewAddress is a freshly derived on-chain address
type NewAddress struct {
	Address string `json:"address"`
}

// AddressType is the script type of an on-chain account
type AddressType string

const (
	AddressUnknown                       AddressType = "UNKNOWN"
	AddressWitnessPubkeyHash             AddressType = "WITNESS_PUBKEY_HASH"
	AddressNestedWitnessPubkeyHash       AddressType = "NESTED_WITNESS_PUBKEY_HASH"
	AddressHybridNestedWitnessPubkeyHash AddressType = "HYBRID_NESTED_WITNESS_PUBKEY_HASH"
	AddressTaprootPubkey                 AddressType = "TAPROOT_PUBKEY"
)

// AddressProperty describes one wallet address
type AddressProperty struct {
	Address        string `json:"address"`
	IsInternal     bool   `json:"is_internal"`
	Balance        int64  `json:"balance,string"`
	DerivationPath string `json:"derivation_path"`
	PublicKey      string `json:"public_key"`
}

// AccountWithAddresses groups the addresses of one wallet account
type AccountWithAddresses struct {
	Name           string            `json:"name"`
	AddressType    AddressType       `json:"address_type"`
	DerivationPath string            `json:"derivation_path"`
	Addresses      []AddressProperty `json:"addresses"`
}

// ListAddressesResponse lists wallet accounts and their addresses
type ListAddressesResponse struct {
	AccountWithAddresses []AccountWithAddresses `json:"account_with_addresses"`
}

// DefaultAddresses returns the addresses of the "default" account. Several
// default accounts exist, one per address type; their addresses are joined.
func (r *ListAddressesResponse) DefaultAddresses() ([]AddressProperty, error) {
	var (
		out   []AddressProperty
		found bool
	)
	for _, account := range r.AccountWithAddresses {
		if account.Name == "default" {
			found = true
			out = append(out, account.Addresses...)
		}
	}
	if !found {
		return nil, ErrNoDefaultAccount
	}
	return out, nil
}
