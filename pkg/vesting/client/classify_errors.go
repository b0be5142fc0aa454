package client

import (
	"fmt"
	"regexp"
)

// SendTxReturnCode says why the ledger refused a transaction at send time.
type SendTxReturnCode int

const (
	Successful SendTxReturnCode = iota + 1
	// Unknown is any refusal not listed in sendErrors.
	Unknown
	// InstructionFailed means preflight simulation ran the program and it returned an error.
	InstructionFailed
	// BlockhashExpired means the transaction may be rebuilt with a fresh blockhash and resent.
	BlockhashExpired
	// AlreadyProcessed means an identical transaction already landed.
	AlreadyProcessed
	// InsufficientFunds means the fee payer or a debited account needs funding first.
	InsufficientFunds
	// InvalidSignature means a signature is missing or does not verify.
	InvalidSignature
	// ProgramNotFound means an instruction targets a program that is not deployed.
	ProgramNotFound
	// Malformed means the message itself is invalid and will never be accepted.
	Malformed
)

var returnCodeNames = map[SendTxReturnCode]string{
	Successful:        "Successful",
	Unknown:           "Unknown",
	InstructionFailed: "InstructionFailed",
	BlockhashExpired:  "BlockhashExpired",
	AlreadyProcessed:  "AlreadyProcessed",
	InsufficientFunds: "InsufficientFunds",
	InvalidSignature:  "InvalidSignature",
	ProgramNotFound:   "ProgramNotFound",
	Malformed:         "Malformed",
}

func (c SendTxReturnCode) String() string {
	if n, ok := returnCodeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("SendTxReturnCode(%d)", int(c))
}

// sendErrors is evaluated in order and the first match wins.
// Messages from https://github.com/anza-xyz/agave/blob/master/sdk/src/transaction/error.rs
var sendErrors = []struct {
	pattern *regexp.Regexp
	code    SendTxReturnCode
}{
	{regexp.MustCompile(`Error processing Instruction \d+: .+`), InstructionFailed},
	{regexp.MustCompile(`This transaction has already been processed`), AlreadyProcessed},
	{regexp.MustCompile(`Blockhash not found`), BlockhashExpired},
	{regexp.MustCompile(`Insufficient funds for fee`), InsufficientFunds},
	{regexp.MustCompile(`Attempt to debit an account but found no record of a prior credit\.`), InsufficientFunds},
	{regexp.MustCompile(`Transaction results in an account \(\d+\) with insufficient funds for rent`), InsufficientFunds},
	{regexp.MustCompile(`Transaction leaves an account with a lower balance than rent-exempt minimum`), InsufficientFunds},
	{regexp.MustCompile(`Transaction did not pass signature verification`), InvalidSignature},
	{regexp.MustCompile(`Transaction requires a fee but has no signature present`), InvalidSignature},
	{regexp.MustCompile(`Attempt to load a program that does not exist`), ProgramNotFound},
	{regexp.MustCompile(`This program may not be used for executing instructions`), ProgramNotFound},
	{regexp.MustCompile(`Transaction failed to sanitize accounts offsets correctly`), Malformed},
	{regexp.MustCompile(`Transaction contains an invalid account reference`), Malformed},
	{regexp.MustCompile(`Account loaded twice`), Malformed},
	{regexp.MustCompile(`Transaction contains a duplicate instruction \(\d+\) that is not allowed`), Malformed},
	{regexp.MustCompile(`Transaction version is unsupported`), Malformed},
	{regexp.MustCompile(`Transaction locked too many accounts`), Malformed},
}

// ClassifySendError maps a sendTransaction error to a return code.
func ClassifySendError(err error) SendTxReturnCode {
	if err == nil {
		return Successful
	}
	msg := err.Error()
	for _, e := range sendErrors {
		if e.pattern.MatchString(msg) {
			return e.code
		}
	}
	return Unknown
}
