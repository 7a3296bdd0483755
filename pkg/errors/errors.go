package errors

import (
	"encoding/json"
	"fmt"
)

type AppError struct {
	Code    int    // Stable reason code, see constants below
	Message string // User-facing message
	Err     error  // Underlying error (optional)
}

// Reason codes are part of the wire contract: the presentation layer keys
// specific explanations off them, so they must never be renumbered.
const (
	ErrInvalidToken       = 1001
	ErrAuctionNotFound    = 1002
	ErrBidTooLow          = 1003
	ErrAuctionExpired     = 1004
	ErrAlreadyEnded       = 1005
	ErrNotYetExpired      = 1006
	ErrSellerCannotBid    = 1007
	ErrBelowReserve       = 1008
	ErrInvalidAmount      = 1009
	ErrValueMismatch      = 1010
	ErrNoFeedConfigured   = 1011
	ErrStalePrice         = 1012
	ErrInvalidPrice       = 1013
	ErrDurationTooShort   = 1014
	ErrInvalidReserve     = 1015
	ErrInvalidFeePercent  = 1016
	ErrNotOwner           = 1017
	ErrIndexOutOfRange    = 1018
	ErrEscrowFailed       = 1019
	ErrCustodyFailed      = 1020
	ErrInsufficientFunds  = 1021
	ErrNothingToWithdraw  = 1022
	ErrTokenNotFound      = 1023
	ErrNotApproved        = 1024
	ErrBadMessageFormat   = 1025
	ErrUnknownMessageType = 1026
	ErrRateLimited        = 1027

	ErrInternalServer = 500
)

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ToJSON renders the error as a websocket error envelope.
func (e *AppError) ToJSON() []byte {
	payload := struct {
		Type    string `json:"type"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{Type: "error", Code: e.Code, Message: e.Message}

	data, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"type": "error", "message": "internal server error"}`)
	}
	return data
}

// Wrapping utility
func Wrap(err error, message string) *AppError {
	return &AppError{Message: message, Err: err}
}

// WrapCode wraps an underlying error while keeping a stable reason code.
func WrapCode(code int, err error, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Error creation utility
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Code extracts the reason code from an error, or 0 if it is not an AppError.
func Code(err error) int {
	for err != nil {
		if e, ok := err.(*AppError); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}
