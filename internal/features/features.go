// Package features turns a transaction into the fixed-order numeric vector
// the fraud classifier was trained on.
//
// The classifier has no notion of named columns: it reads slot i as whatever
// column i was at training time. Slot order is therefore part of the model
// contract and must never change without retraining.
package features

import (
	"errors"
	"fmt"
	"strings"
)

// TransactionType is the categorical transaction kind.
type TransactionType string

const (
	TypeCashOut  TransactionType = "CASH_OUT"
	TypeDebit    TransactionType = "DEBIT"
	TypePayment  TransactionType = "PAYMENT"
	TypeTransfer TransactionType = "TRANSFER"

	// TypeCashIn is the reference category. It has no one-hot slot and is
	// not accepted as input.
	TypeCashIn TransactionType = "CASH_IN"
)

// oneHotTypes lists the types that own a one-hot slot, in slot order.
var oneHotTypes = [...]TransactionType{TypeCashOut, TypeDebit, TypePayment, TypeTransfer}

// ErrInvalidType is returned for transaction types outside ValidTypes.
var ErrInvalidType = errors.New("invalid transaction type")

// ErrSchemaMismatch is returned when a classifier's named features do not
// line up with the encoder's slots.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// ValidTypes returns the accepted transaction types in slot order.
func ValidTypes() []TransactionType {
	out := make([]TransactionType, len(oneHotTypes))
	copy(out, oneHotTypes[:])
	return out
}

// ValidTypeNames is ValidTypes as plain strings.
func ValidTypeNames() []string {
	out := make([]string, len(oneHotTypes))
	for i, t := range oneHotTypes {
		out[i] = string(t)
	}
	return out
}

// Valid reports whether t is one of the accepted types.
func (t TransactionType) Valid() bool {
	for _, v := range oneHotTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ParseTransactionType validates s against the accepted types. Matching is
// exact; "cash_out" is rejected.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w %q: must be one of %v", ErrInvalidType, s, ValidTypeNames())
	}
	return t, nil
}

// Transaction is the validated domain form of a scoring request.
type Transaction struct {
	Type           TransactionType
	Amount         float64
	OldBalanceOrig float64
	NewBalanceOrig float64
	OldBalanceDest float64
	NewBalanceDest float64
	IsFlaggedFraud int
}

// Slot names, in vector order.
const (
	NameStep           = "step"
	NameAmount         = "amount"
	NameOldBalanceOrig = "oldbalanceOrg"
	NameNewBalanceOrig = "newbalanceOrig"
	NameOldBalanceDest = "oldbalanceDest"
	NameNewBalanceDest = "newbalanceDest"
	NameIsFlaggedFraud = "isFlaggedFraud"
)

// Width is the number of slots in a Vector.
const Width = 11

var names = [Width]string{
	NameStep,
	NameAmount,
	NameOldBalanceOrig,
	NameNewBalanceOrig,
	NameOldBalanceDest,
	NameNewBalanceDest,
	NameIsFlaggedFraud,
	"type_" + string(TypeCashOut),
	"type_" + string(TypeDebit),
	"type_" + string(TypePayment),
	"type_" + string(TypeTransfer),
}

// index of the first one-hot slot
const typeOffset = 7

// FeatureNames returns the slot names in vector order.
func FeatureNames() []string {
	out := make([]string, Width)
	copy(out, names[:])
	return out
}

// Vector is an encoded transaction.
type Vector [Width]float64

// Slice returns the vector as a slice for classifier input.
func (v Vector) Slice() []float64 {
	out := make([]float64, Width)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by slot name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, Width)
	for i, n := range names {
		m[n] = v[i]
	}
	return m
}

// Encode builds the feature vector for tx. step is the request sequence
// number, not a timestamp. Encode does not validate tx.Type; an unknown type
// leaves every one-hot slot at zero.
func Encode(tx Transaction, step uint64) Vector {
	var v Vector
	v[0] = float64(step)
	v[1] = tx.Amount
	v[2] = tx.OldBalanceOrig
	v[3] = tx.NewBalanceOrig
	v[4] = tx.OldBalanceDest
	v[5] = tx.NewBalanceDest
	v[6] = float64(tx.IsFlaggedFraud)
	for i, t := range oneHotTypes {
		if tx.Type == t {
			v[typeOffset+i] = 1
		}
	}
	return v
}

// CheckSchema compares classifier feature names against the encoder slots.
// An empty list means the classifier does not expose names and only the
// width can be checked, which happens per request.
func CheckSchema(got []string) error {
	if len(got) == 0 {
		return nil
	}
	if len(got) != Width {
		return fmt.Errorf("%w: model has %d named features, encoder produces %d", ErrSchemaMismatch, len(got), Width)
	}
	for i, n := range names {
		if got[i] != n {
			return fmt.Errorf("%w: slot %d is %q in model, %q in encoder", ErrSchemaMismatch, i, got[i], n)
		}
	}
	return nil
}

// Describe renders the vector as "name=value" pairs for debug logging.
func (v Vector) Describe() string {
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%g", n, v[i])
	}
	return b.String()
}
