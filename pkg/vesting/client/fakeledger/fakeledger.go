// Package fakeledger is an in-memory ledger speaking the subset of the JSON-RPC
// API used by the harness. It verifies signatures, charges fees, executes
// system program instructions and delegates other programs to registered handlers.
package fakeledger

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"

	"github.com/smartcontractkit/solana-token-vesting/pkg/vesting/state"
)

const (
	// LamportsPerSignature is the flat fee charged per transaction signature.
	LamportsPerSignature = 5000

	rentLamportsPerByteYear = 3480
	rentExemptionYears      = 2
	accountStorageOverhead  = 128
)

var computeBudgetProgram = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// CustomError is reported by the ledger as {"Custom": code}.
type CustomError uint32

func (e CustomError) Error() string { return fmt.Sprintf("custom program error: %#x", uint32(e)) }

// Accounts is the mutable ledger state handed to program handlers.
type Accounts map[solana.PublicKey]*Account

// ProgramHandler executes one instruction addressed to a registered program.
// Returning an error fails the whole transaction and rolls back its effects.
type ProgramHandler func(accounts Accounts, metas []*solana.AccountMeta, data []byte) error

type status struct {
	slot  uint64
	level int // 1 processed, 2 confirmed, 3 finalized
	err   interface{}
}

var levels = map[int]string{1: "processed", 2: "confirmed", 3: "finalized"}

type Ledger struct {
	t   testing.TB
	srv *httptest.Server

	mu              sync.Mutex
	slot            uint64
	blockhash       solana.Hash
	accounts        Accounts
	statuses        map[solana.Signature]*status
	programs        map[solana.PublicKey]ProgramHandler
	calls           map[string]int
	down            bool
	airdropFailures int
	stalled         bool
}

// New starts a fake ledger that is shut down when the test ends.
func New(t testing.TB) *Ledger {
	l := &Ledger{
		t:         t,
		slot:      1,
		blockhash: solana.HashFromBytes(bytes.Repeat([]byte{7}, 32)),
		accounts:  Accounts{},
		statuses:  map[solana.Signature]*status{},
		programs:  map[solana.PublicKey]ProgramHandler{},
		calls:     map[string]int{},
	}
	l.srv = httptest.NewServer(http.HandlerFunc(l.serve))
	t.Cleanup(l.srv.Close)
	return l
}

func (l *Ledger) URL() string { return l.srv.URL }

// RegisterProgram routes instructions for programID to h.
func (l *Ledger) RegisterProgram(programID solana.PublicKey, h ProgramHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[programID] = h
}

// SetDown makes every request fail with 503, like a node that is still booting.
func (l *Ledger) SetDown(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.down = down
}

// FailAirdrops rejects the next n airdrop requests.
func (l *Ledger) FailAirdrops(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.airdropFailures = n
}

// Stall keeps every landed signature at "processed".
func (l *Ledger) Stall(stalled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stalled = stalled
}

// SetAccount writes raw account state.
func (l *Ledger) SetAccount(addr solana.PublicKey, acc Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data := make([]byte, len(acc.Data))
	copy(data, acc.Data)
	l.accounts[addr] = &Account{Lamports: acc.Lamports, Owner: acc.Owner, Data: data}
}

// Account returns a copy of the account state, if any.
func (l *Ledger) Account(addr solana.PublicKey) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return Account{Lamports: acc.Lamports, Owner: acc.Owner, Data: append([]byte(nil), acc.Data...)}, true
}

func (l *Ledger) Balance(addr solana.PublicKey) uint64 {
	acc, _ := l.Account(addr)
	return acc.Lamports
}

// Calls returns how many times method was requested.
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// TotalCalls returns the number of requests served, whatever the method.
func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.calls {
		total += n
	}
	return total
}

// RentExemptMinimum mirrors the default rent parameters of a local validator.
func RentExemptMinimum(dataSize uint64) uint64 {
	return (accountStorageOverhead + dataSize) * rentLamportsPerByteYear * rentExemptionYears
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (l *Ledger) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	l.mu.Lock()
	l.calls[req.Method]++
	if l.down {
		l.mu.Unlock()
		http.Error(w, "node is starting", http.StatusServiceUnavailable)
		return
	}
	result, rerr := l.dispatch(req)
	l.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rerr != nil {
		resp["error"] = rerr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		l.t.Errorf("fakeledger: failed to write response: %v", err)
	}
}

func (l *Ledger) context() map[string]interface{} {
	return map[string]interface{}{"slot": l.slot}
}

func (l *Ledger) dispatch(req request) (interface{}, *rpcError) {
	switch req.Method {
	case "getHealth":
		return "ok", nil
	case "getBalance":
		addr, err := pubkeyParam(req.Params, 0)
		if err != nil {
			return nil, err
		}
		var lamports uint64
		if acc, ok := l.accounts[addr]; ok {
			lamports = acc.Lamports
		}
		return map[string]interface{}{"context": l.context(), "value": lamports}, nil
	case "getAccountInfo":
		addr, err := pubkeyParam(req.Params, 0)
		if err != nil {
			return nil, err
		}
		acc, ok := l.accounts[addr]
		if !ok {
			return map[string]interface{}{"context": l.context(), "value": nil}, nil
		}
		return map[string]interface{}{"context": l.context(), "value": encodeAccount(acc)}, nil
	case "getLatestBlockhash":
		return map[string]interface{}{
			"context": l.context(),
			"value": map[string]interface{}{
				"blockhash":            l.blockhash.String(),
				"lastValidBlockHeight": l.slot + 150,
			},
		}, nil
	case "getMinimumBalanceForRentExemption":
		var size uint64
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &size) != nil {
			return nil, &rpcError{Code: -32602, Message: "invalid data size"}
		}
		return RentExemptMinimum(size), nil
	case "requestAirdrop":
		return l.requestAirdrop(req.Params)
	case "sendTransaction":
		return l.sendTransaction(req.Params)
	case "getSignatureStatuses":
		return l.signatureStatuses(req.Params)
	case "getProgramAccounts":
		return l.programAccounts(req.Params)
	default:
		return nil, &rpcError{Code: -32601, Message: "Method not found: " + req.Method}
	}
}

func pubkeyParam(params []json.RawMessage, i int) (solana.PublicKey, *rpcError) {
	var s string
	if len(params) <= i || json.Unmarshal(params[i], &s) != nil {
		return solana.PublicKey{}, &rpcError{Code: -32602, Message: "missing public key"}
	}
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, &rpcError{Code: -32602, Message: "Invalid param: " + err.Error()}
	}
	return pk, nil
}

func encodeAccount(acc *Account) map[string]interface{} {
	return map[string]interface{}{
		"lamports":   acc.Lamports,
		"owner":      acc.Owner.String(),
		"data":       []string{base64.StdEncoding.EncodeToString(acc.Data), "base64"},
		"executable": false,
		"rentEpoch":  0,
		"space":      len(acc.Data),
	}
}

func (l *Ledger) land(sig solana.Signature, txErr interface{}) {
	l.slot++
	l.statuses[sig] = &status{slot: l.slot, level: 1, err: txErr}
}

func (l *Ledger) requestAirdrop(params []json.RawMessage) (interface{}, *rpcError) {
	addr, rerr := pubkeyParam(params, 0)
	if rerr != nil {
		return nil, rerr
	}
	var lamports uint64
	if len(params) < 2 || json.Unmarshal(params[1], &lamports) != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid lamports"}
	}
	if l.airdropFailures > 0 {
		l.airdropFailures--
		return nil, &rpcError{Code: -32600, Message: "airdrop request failed. This can happen when the rate limit is reached."}
	}
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &Account{Owner: solana.SystemProgramID}
		l.accounts[addr] = acc
	}
	acc.Lamports += lamports

	var sig solana.Signature
	copy(sig[:], bytes.Repeat([]byte{byte(l.slot)}, 8))
	copy(sig[8:], addr[:])
	l.land(sig, nil)
	return sig.String(), nil
}

func (l *Ledger) sendTransaction(params []json.RawMessage) (interface{}, *rpcError) {
	var encoded string
	if len(params) == 0 || json.Unmarshal(params[0], &encoded) != nil {
		return nil, &rpcError{Code: -32602, Message: "missing transaction"}
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &rpcError{Code: -32602, Message: "invalid base64 transaction: " + err.Error()}
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, &rpcError{Code: -32602, Message: "failed to deserialize transaction: " + err.Error()}
	}
	if len(tx.Signatures) == 0 || len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return nil, &rpcError{Code: -32602, Message: "Transaction requires a fee but has no signature present"}
	}
	if err := tx.VerifySignatures(); err != nil {
		return nil, &rpcError{Code: -32003, Message: "Transaction did not pass signature verification"}
	}
	if !tx.Message.RecentBlockhash.Equals(l.blockhash) {
		return nil, &rpcError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}
	}
	sig := tx.Signatures[0]
	if _, seen := l.statuses[sig]; seen {
		return nil, &rpcError{Code: -32002, Message: "Transaction simulation failed: This transaction has already been processed"}
	}

	payer := tx.Message.AccountKeys[0]
	fee := uint64(LamportsPerSignature * len(tx.Signatures))
	payerAcc, ok := l.accounts[payer]
	if !ok || payerAcc.Lamports < fee {
		return nil, &rpcError{Code: -32002, Message: "Transaction simulation failed: Attempt to debit an account but found no record of a prior credit."}
	}
	payerAcc.Lamports -= fee

	// execute against a copy so a failing instruction rolls back everything but the fee
	working := l.snapshot()
	var txErr interface{}
	for i, inst := range tx.Message.Instructions {
		if err := l.execute(working, tx, inst); err != nil {
			var detail interface{} = err.Error()
			if code, ok := err.(CustomError); ok {
				detail = map[string]interface{}{"Custom": uint32(code)}
			}
			txErr = map[string]interface{}{"InstructionError": []interface{}{i, detail}}
			break
		}
	}
	if txErr == nil {
		l.accounts = working
	}
	l.land(sig, txErr)
	return sig.String(), nil
}

func (l *Ledger) snapshot() Accounts {
	out := make(Accounts, len(l.accounts))
	for k, v := range l.accounts {
		out[k] = &Account{Lamports: v.Lamports, Owner: v.Owner, Data: append([]byte(nil), v.Data...)}
	}
	return out
}

func (l *Ledger) execute(accounts Accounts, tx *solana.Transaction, inst solana.CompiledInstruction) error {
	programID, err := tx.Message.Program(inst.ProgramIDIndex)
	if err != nil {
		return err
	}
	metas, err := inst.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return err
	}
	if programID.Equals(solana.SystemProgramID) {
		return executeSystem(accounts, metas, inst.Data)
	}
	if programID.Equals(computeBudgetProgram) {
		return nil
	}
	h, ok := l.programs[programID]
	if !ok {
		return fmt.Errorf("Attempt to load a program that does not exist: %s", programID)
	}
	return h(accounts, metas, inst.Data)
}

func executeSystem(accounts Accounts, metas []*solana.AccountMeta, data []byte) error {
	decoded, err := system.DecodeInstruction(metas, data)
	if err != nil {
		return err
	}
	switch ix := decoded.Impl.(type) {
	case *system.CreateAccount:
		from, to := ix.GetFundingAccount().PublicKey, ix.GetNewAccount().PublicKey
		if existing, ok := accounts[to]; ok && (len(existing.Data) > 0 || existing.Lamports > 0) {
			return fmt.Errorf("account %s already in use", to)
		}
		if err := debit(accounts, from, *ix.Lamports); err != nil {
			return err
		}
		accounts[to] = &Account{Lamports: *ix.Lamports, Owner: *ix.Owner, Data: make([]byte, *ix.Space)}
		return nil
	case *system.Transfer:
		from, to := ix.GetFundingAccount().PublicKey, ix.GetRecipientAccount().PublicKey
		if err := debit(accounts, from, *ix.Lamports); err != nil {
			return err
		}
		acc, ok := accounts[to]
		if !ok {
			acc = &Account{Owner: solana.SystemProgramID}
			accounts[to] = acc
		}
		acc.Lamports += *ix.Lamports
		return nil
	default:
		return fmt.Errorf("unsupported system instruction %T", ix)
	}
}

func debit(accounts Accounts, from solana.PublicKey, lamports uint64) error {
	acc, ok := accounts[from]
	if !ok || acc.Lamports < lamports {
		return fmt.Errorf("insufficient lamports in %s", from)
	}
	acc.Lamports -= lamports
	return nil
}

func (l *Ledger) signatureStatuses(params []json.RawMessage) (interface{}, *rpcError) {
	var sigs []string
	if len(params) == 0 || json.Unmarshal(params[0], &sigs) != nil {
		return nil, &rpcError{Code: -32602, Message: "missing signatures"}
	}
	out := make([]interface{}, len(sigs))
	for i, s := range sigs {
		sig, err := solana.SignatureFromBase58(s)
		if err != nil {
			return nil, &rpcError{Code: -32602, Message: "Invalid param: " + err.Error()}
		}
		st, ok := l.statuses[sig]
		if !ok {
			continue
		}
		res := map[string]interface{}{
			"slot":               st.slot,
			"confirmations":      nil,
			"err":                st.err,
			"confirmationStatus": levels[st.level],
		}
		if st.err == nil {
			res["status"] = map[string]interface{}{"Ok": nil}
		} else {
			res["status"] = map[string]interface{}{"Err": st.err}
		}
		out[i] = res
		// every observation moves the signature one level closer to finality
		if !l.stalled && st.level < 3 {
			st.level++
		}
	}
	return map[string]interface{}{"context": l.context(), "value": out}, nil
}

type programAccountsOpts struct {
	Filters []struct {
		Memcmp *struct {
			Offset uint64 `json:"offset"`
			Bytes  string `json:"bytes"`
		} `json:"memcmp"`
		DataSize *uint64 `json:"dataSize"`
	} `json:"filters"`
}

func (l *Ledger) programAccounts(params []json.RawMessage) (interface{}, *rpcError) {
	program, rerr := pubkeyParam(params, 0)
	if rerr != nil {
		return nil, rerr
	}
	var opts programAccountsOpts
	if len(params) > 1 {
		if err := json.Unmarshal(params[1], &opts); err != nil {
			return nil, &rpcError{Code: -32602, Message: "Invalid params: " + err.Error()}
		}
	}

	var memcmp state.AccountFilter
	var dataSize *uint64
	for _, f := range opts.Filters {
		switch {
		case f.Memcmp != nil:
			want, err := base58.Decode(f.Memcmp.Bytes)
			if err != nil {
				return nil, &rpcError{Code: -32602, Message: "Invalid param: invalid base58 memcmp bytes"}
			}
			memcmp = append(memcmp, state.Memcmp{Offset: f.Memcmp.Offset, Bytes: want})
		case f.DataSize != nil:
			dataSize = f.DataSize
		}
	}

	out := []interface{}{}
	for addr, acc := range l.accounts {
		if !acc.Owner.Equals(program) {
			continue
		}
		if dataSize != nil && uint64(len(acc.Data)) != *dataSize {
			continue
		}
		if memcmp.Matches(acc.Data) {
			out = append(out, map[string]interface{}{"pubkey": addr.String(), "account": encodeAccount(acc)})
		}
	}
	return out, nil
}
