package app

import errorsmod "cosmossdk.io/errors"

// Codespace for the escrow ledger's sentinel errors.
const ModuleName = "escrow"

var (
	ErrInvalidRequest = errorsmod.Register(ModuleName, 2, "invalid request")
	ErrUnauthorized   = errorsmod.Register(ModuleName, 3, "unauthorized")
	ErrTableNotFound  = errorsmod.Register(ModuleName, 4, "table not found")
	ErrTableClosed    = errorsmod.Register(ModuleName, 5, "table closed")
	ErrInvalidRange   = errorsmod.Register(ModuleName, 6, "invalid range")
	ErrInvalidAmount  = errorsmod.Register(ModuleName, 7, "invalid amount")
	ErrNotEnough      = errorsmod.Register(ModuleName, 8, "not enough escrowed funds")
	ErrAlreadyUsed    = errorsmod.Register(ModuleName, 9, "settlement id already used")
	ErrBadSig         = errorsmod.Register(ModuleName, 10, "bad signature")
	ErrTransferFailed = errorsmod.Register(ModuleName, 11, "transfer failed")
)
