package txparams

import "fmt"

// Code identifies one of the closed set of construction errors.
type Code int

const (
	CodeNoUtxosProvided Code = iota + 1
	CodeNoVerifierProvided
	CodeNoHasherProvided
	CodeNoActionProvided
	CodeNoLookupTableProvided
	CodeNoPayerProvided
	CodeMessageNotSupported
	CodeTooManyInputs
	CodeTooManyOutputs
	CodeAssetPubkeysOverflow
	CodeRelayerDefined
	CodeRelayerUndefined
	CodePublicAmountNotU64
	CodePublicAmountNotNegative
	CodeRecipientDefined
	CodeRecipientUndefined
	CodeSenderDefined
	CodeSenderUndefined
	CodeSplPublicAmountNotZero
	CodeSolPublicAmountFeeMismatch
)

// Error is returned by every failed construction. Two errors match with
// errors.Is when their codes are equal.
type Error struct {
	Code Code
	Msg  string
	// Detail is optional context about the offending value.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Detail)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// IsConfiguration tells configuration errors, always caused by the caller
// wiring, from validation errors caused by the transaction itself.
func (e *Error) IsConfiguration() bool {
	return e.Code <= CodeMessageNotSupported
}

func (e *Error) with(format string, args ...any) *Error {
	return &Error{Code: e.Code, Msg: e.Msg, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrNoUtxosProvided       = &Error{Code: CodeNoUtxosProvided, Msg: "no input or output utxos provided"}
	ErrNoVerifierProvided    = &Error{Code: CodeNoVerifierProvided, Msg: "no verifier provided"}
	ErrNoHasherProvided      = &Error{Code: CodeNoHasherProvided, Msg: "no hasher provided"}
	ErrNoActionProvided      = &Error{Code: CodeNoActionProvided, Msg: "no action provided"}
	ErrNoLookupTableProvided = &Error{Code: CodeNoLookupTableProvided, Msg: "no lookup table provided"}
	ErrNoPayerProvided       = &Error{Code: CodeNoPayerProvided, Msg: "no payer provided"}
	ErrMessageNotSupported   = &Error{Code: CodeMessageNotSupported, Msg: "verifier does not support messages"}

	ErrTooManyInputs              = &Error{Code: CodeTooManyInputs, Msg: "too many input utxos"}
	ErrTooManyOutputs             = &Error{Code: CodeTooManyOutputs, Msg: "too many output utxos"}
	ErrAssetPubkeysOverflow       = &Error{Code: CodeAssetPubkeysOverflow, Msg: "utxos hold too many distinct assets"}
	ErrRelayerDefined             = &Error{Code: CodeRelayerDefined, Msg: "relayer must not be set for a shield"}
	ErrRelayerUndefined           = &Error{Code: CodeRelayerUndefined, Msg: "relayer is required"}
	ErrPublicAmountNotU64         = &Error{Code: CodePublicAmountNotU64, Msg: "public amount does not fit in u64"}
	ErrPublicAmountNotNegative    = &Error{Code: CodePublicAmountNotNegative, Msg: "public amount must encode a negative u64"}
	ErrRecipientDefined           = &Error{Code: CodeRecipientDefined, Msg: "recipient account must not be set"}
	ErrRecipientUndefined         = &Error{Code: CodeRecipientUndefined, Msg: "recipient account is required"}
	ErrSenderDefined              = &Error{Code: CodeSenderDefined, Msg: "sender account must not be set"}
	ErrSenderUndefined            = &Error{Code: CodeSenderUndefined, Msg: "sender account is required"}
	ErrSplPublicAmountNotZero     = &Error{Code: CodeSplPublicAmountNotZero, Msg: "spl public amount must be zero for a transfer"}
	ErrSolPublicAmountFeeMismatch = &Error{Code: CodeSolPublicAmountFeeMismatch, Msg: "sol public amount must equal the negated relayer fee"}
)
