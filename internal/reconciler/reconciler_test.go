package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decentralized-86/pumpshie-backend/internal/chain"
	"github.com/decentralized-86/pumpshie-backend/internal/model"
	"github.com/decentralized-86/pumpshie-backend/internal/repository"
)

type fakeUserStore struct {
	byWallet    map[string]*model.User
	bound       map[int64]string
	accessTypes map[int64]model.AccessType
	paidUntil   map[int64]time.Time
	bindErr     error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byWallet:    map[string]*model.User{},
		bound:       map[int64]string{},
		accessTypes: map[int64]model.AccessType{},
		paidUntil:   map[int64]time.Time{},
	}
}

func (f *fakeUserStore) GetByWallet(_ context.Context, wallet string) (*model.User, error) {
	user, ok := f.byWallet[wallet]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) BindWallet(_ context.Context, tgID int64, wallet string) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	f.bound[tgID] = wallet
	return nil
}

func (f *fakeUserStore) SetAccessType(_ context.Context, tgID int64, at model.AccessType) error {
	f.accessTypes[tgID] = at
	return nil
}

func (f *fakeUserStore) SetPaidAccess(_ context.Context, tgID int64, until time.Time) error {
	f.paidUntil[tgID] = until
	return nil
}

type fakeLinkStore struct {
	pending   map[string]*model.WalletLink
	confirmed map[string]bool
	deleted   map[string]bool
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{
		pending:   map[string]*model.WalletLink{},
		confirmed: map[string]bool{},
		deleted:   map[string]bool{},
	}
}

func (f *fakeLinkStore) GetPending(_ context.Context, wallet string) (*model.WalletLink, error) {
	link, ok := f.pending[wallet]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (f *fakeLinkStore) Confirm(_ context.Context, wallet string) error {
	if f.confirmed[wallet] {
		return repository.ErrLinkAlreadyConfirmed
	}
	f.confirmed[wallet] = true
	delete(f.pending, wallet)
	return nil
}

func (f *fakeLinkStore) Delete(_ context.Context, wallet string) error {
	f.deleted[wallet] = true
	delete(f.pending, wallet)
	return nil
}

type fakeChainReader struct {
	txs      map[string]*chain.ParsedTransaction
	balances map[string]uint64
	fetches  int
}

func (f *fakeChainReader) GetParsedTransaction(_ context.Context, signature string) (*chain.ParsedTransaction, error) {
	f.fetches++
	tx, ok := f.txs[signature]
	if !ok {
		return nil, chain.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeChainReader) GetSignaturesForAddress(_ context.Context, _ string, _ int) ([]string, error) {
	return nil, nil
}

func (f *fakeChainReader) GetTokenBalance(_ context.Context, owner string) (uint64, error) {
	return f.balances[owner], nil
}

const (
	depositAccount = "DepositTokenAcct"
	adminAddress   = "AdminWallet"
	payerWallet    = "PayerWallet"
)

func testConfig() Config {
	return Config{
		DepositTokenAccount: depositAccount,
		AdminAddress:        adminAddress,
		LinkAmountTokens:    1_000_000,
		PaidAccessLamports:  5_000_000,
		HolderMinTokens:     1_000_000_000,
		PaidAccessHours:     24,
	}
}

func tokenTransferTx(source, dest string, amount uint64) *chain.ParsedTransaction {
	return parsedTx(chain.TokenProgramID, fmt.Sprintf(`{
		"type": "transferChecked",
		"info": {
			"signers": [%q],
			"source": "SourceTokenAcct",
			"destination": %q,
			"tokenAmount": {"amount": "%d", "decimals": 6}
		}
	}`, source, dest, amount))
}

func solTransferTx(source, dest string, lamports uint64) *chain.ParsedTransaction {
	return parsedTx(chain.SystemProgramID, fmt.Sprintf(`{
		"type": "transfer",
		"info": {"source": %q, "destination": %q, "lamports": %d}
	}`, source, dest, lamports))
}

func parsedTx(programID, parsed string) *chain.ParsedTransaction {
	tx := &chain.ParsedTransaction{}
	tx.Transaction.Message.Instructions = []chain.ParsedInstruction{
		{ProgramID: programID, Parsed: json.RawMessage(parsed)},
	}
	return tx
}

func newTestReconciler(t *testing.T, users *fakeUserStore, links *fakeLinkStore, reader *fakeChainReader) *Reconciler {
	t.Helper()
	rec, err := New(users, links, reader, nil, testConfig())
	require.NoError(t, err)
	return rec
}

func TestProcessSignature_ConfirmsLinkOnExactDeposit(t *testing.T) {
	users := newFakeUserStore()
	links := newFakeLinkStore()
	links.pending[payerWallet] = &model.WalletLink{
		WalletAddress: payerWallet,
		UserID:        42,
		CreatedAt:     time.Now(),
	}
	reader := &fakeChainReader{
		txs:      map[string]*chain.ParsedTransaction{"sig1": tokenTransferTx(payerWallet, depositAccount, 1_000_000)},
		balances: map[string]uint64{payerWallet: 2_000_000_000},
	}

	rec := newTestReconciler(t, users, links, reader)
	require.NoError(t, rec.ProcessSignature(context.Background(), "sig1"))

	assert.Equal(t, payerWallet, users.bound[42])
	assert.True(t, links.confirmed[payerWallet])
	// Balance cleared the holder threshold, so the user is promoted right away.
	assert.Equal(t, model.AccessTokenHolder, users.accessTypes[42])
}

func TestProcessSignature_IgnoresInexactDeposit(t *testing.T) {
	users := newFakeUserStore()
	links := newFakeLinkStore()
	links.pending[payerWallet] = &model.WalletLink{
		WalletAddress: payerWallet,
		UserID:        42,
		CreatedAt:     time.Now(),
	}
	reader := &fakeChainReader{txs: map[string]*chain.ParsedTransaction{
		"wrong-amount": tokenTransferTx(payerWallet, depositAccount, 999_999),
		"wrong-dest":   tokenTransferTx(payerWallet, "SomeOtherAcct", 1_000_000),
	}}

	rec := newTestReconciler(t, users, links, reader)
	require.NoError(t, rec.ProcessSignature(context.Background(), "wrong-amount"))
	require.NoError(t, rec.ProcessSignature(context.Background(), "wrong-dest"))

	assert.Empty(t, users.bound)
	assert.False(t, links.confirmed[payerWallet])
}

func TestProcessSignature_DiscardsStaleLink(t *testing.T) {
	users := newFakeUserStore()
	links := newFakeLinkStore()
	links.pending[payerWallet] = &model.WalletLink{
		WalletAddress: payerWallet,
		UserID:        42,
		CreatedAt:     time.Now().Add(-time.Hour),
	}
	reader := &fakeChainReader{txs: map[string]*chain.ParsedTransaction{
		"late": tokenTransferTx(payerWallet, depositAccount, 1_000_000),
	}}

	rec := newTestReconciler(t, users, links, reader)
	require.NoError(t, rec.ProcessSignature(context.Background(), "late"))

	assert.True(t, links.deleted[payerWallet])
	assert.Empty(t, users.bound)
}

func TestProcessSignature_DedupWindow(t *testing.T) {
	users := newFakeUserStore()
	links := newFakeLinkStore()
	reader := &fakeChainReader{txs: map[string]*chain.ParsedTransaction{
		"sig1": tokenTransferTx(payerWallet, depositAccount, 1_000_000),
	}}

	rec := newTestReconciler(t, users, links, reader)
	require.NoError(t, rec.ProcessSignature(context.Background(), "sig1"))
	require.NoError(t, rec.ProcessSignature(context.Background(), "sig1"))

	assert.Equal(t, 1, reader.fetches, "second delivery must not refetch")
}

func TestProcessSignature_NotFoundIsRetryable(t *testing.T) {
	rec := newTestReconciler(t, newFakeUserStore(), newFakeLinkStore(), &fakeChainReader{})

	// Not finalized yet: no error, and the signature stays out of the
	// dedup window so a later delivery gets processed.
	require.NoError(t, rec.ProcessSignature(context.Background(), "pending-sig"))
	_, dup := rec.seen.Get("pending-sig")
	assert.False(t, dup)
}

func TestProcessSignature_SkipsFailedTransaction(t *testing.T) {
	users := newFakeUserStore()
	links := newFakeLinkStore()
	links.pending[payerWallet] = &model.WalletLink{
		WalletAddress: payerWallet,
		UserID:        42,
		CreatedAt:     time.Now(),
	}
	tx := tokenTransferTx(payerWallet, depositAccount, 1_000_000)
	tx.Meta = &chain.TransactionMeta{Err: json.RawMessage(`{"InstructionError":[0,1]}`)}
	reader := &fakeChainReader{txs: map[string]*chain.ParsedTransaction{"failed": tx}}

	rec := newTestReconciler(t, users, links, reader)
	require.NoError(t, rec.ProcessSignature(context.Background(), "failed"))

	assert.Empty(t, users.bound)
	// Failure is terminal on chain, so the signature is settled.
	_, dup := rec.seen.Get("failed")
	assert.True(t, dup)
}

func TestProcessSignature_GrantsPaidAccess(t *testing.T) {
	users := newFakeUserStore()
	users.byWallet[payerWallet] = &model.User{TgID: 7}
	reader := &fakeChainReader{txs: map[string]*chain.ParsedTransaction{
		"pay": solTransferTx(payerWallet, adminAddress, 5_000_000),
	}}

	rec := newTestReconciler(t, users, newFakeLinkStore(), reader)
	before := time.Now()
	require.NoError(t, rec.ProcessSignature(context.Background(), "pay"))

	until, ok := users.paidUntil[7]
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(24*time.Hour), until, time.Minute)
}

func TestProcessSignature_RedeliveredPaymentKeepsOriginalWindow(t *testing.T) {
	users := newFakeUserStore()
	users.byWallet[payerWallet] = &model.User{TgID: 7}
	confirmed := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	tx := solTransferTx(payerWallet, adminAddress, 5_000_000)
	blockTime := confirmed.Unix()
	tx.BlockTime = &blockTime
	reader := &fakeChainReader{txs: map[string]*chain.ParsedTransaction{"pay": tx}}

	rec := newTestReconciler(t, users, newFakeLinkStore(), reader)
	require.NoError(t, rec.ProcessSignature(context.Background(), "pay"))

	want := confirmed.Add(24 * time.Hour)
	assert.Equal(t, want, users.paidUntil[7])

	// Process restarted: the dedup window is empty and catch-up redelivers
	// the same signature two hours later.
	rec.seen.Remove("pay")
	rec.now = func() time.Time { return confirmed.Add(2 * time.Hour) }
	require.NoError(t, rec.ProcessSignature(context.Background(), "pay"))
	assert.Equal(t, want, users.paidUntil[7], "redelivered payment must not move the paid window")
}

func TestProcessSignature_IgnoresWrongPayments(t *testing.T) {
	users := newFakeUserStore()
	users.byWallet[payerWallet] = &model.User{TgID: 7}
	reader := &fakeChainReader{txs: map[string]*chain.ParsedTransaction{
		"short":     solTransferTx(payerWallet, adminAddress, 4_999_999),
		"unlinked":  solTransferTx("StrangerWallet", adminAddress, 5_000_000),
		"elsewhere": solTransferTx(payerWallet, "NotTheAdmin", 5_000_000),
	}}

	rec := newTestReconciler(t, users, newFakeLinkStore(), reader)
	for _, sig := range []string{"short", "unlinked", "elsewhere"} {
		require.NoError(t, rec.ProcessSignature(context.Background(), sig))
	}

	assert.Empty(t, users.paidUntil)
}

func TestProcessSignature_ReplayAfterConfirmIsNoop(t *testing.T) {
	users := newFakeUserStore()
	links := newFakeLinkStore()
	links.pending[payerWallet] = &model.WalletLink{
		WalletAddress: payerWallet,
		UserID:        42,
		CreatedAt:     time.Now(),
	}
	reader := &fakeChainReader{txs: map[string]*chain.ParsedTransaction{
		"sig1": tokenTransferTx(payerWallet, depositAccount, 1_000_000),
	}}

	rec := newTestReconciler(t, users, links, reader)
	require.NoError(t, rec.ProcessSignature(context.Background(), "sig1"))

	// Simulate the dedup window having rolled over.
	rec.seen.Remove("sig1")
	require.NoError(t, rec.ProcessSignature(context.Background(), "sig1"))

	assert.True(t, links.confirmed[payerWallet])
	assert.Equal(t, 2, reader.fetches)
}
