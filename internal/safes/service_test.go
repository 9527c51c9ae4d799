package safes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memorySafeRepo struct {
	safes  map[int64]*Safe
	ledger []Transaction
	nextID int64
	nextTx int64
}

func newMemorySafeRepo() *memorySafeRepo {
	return &memorySafeRepo{safes: make(map[int64]*Safe)}
}

func (r *memorySafeRepo) addSafe(code string) int64 {
	r.nextID++
	r.safes[r.nextID] = &Safe{ID: r.nextID, Name: code, Code: code, Active: true, CreatedAt: time.Now()}
	return r.nextID
}

func (r *memorySafeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	safes := make(map[int64]*Safe, len(r.safes))
	for id, s := range r.safes {
		cp := *s
		safes[id] = &cp
	}
	ledgerLen := len(r.ledger)
	if err := fn(ctx, r); err != nil {
		r.safes = safes
		r.ledger = r.ledger[:ledgerLen]
		return err
	}
	return nil
}

func (r *memorySafeRepo) CreateSafe(ctx context.Context, input CreateSafeInput) (Safe, error) {
	for _, s := range r.safes {
		if s.Code == input.Code {
			return Safe{}, ErrDuplicateCode
		}
	}
	r.nextID++
	safe := Safe{ID: r.nextID, Name: input.Name, Code: input.Code, ParentID: input.ParentID, Active: true, CreatedAt: time.Now()}
	r.safes[safe.ID] = &safe
	return safe, nil
}

func (r *memorySafeRepo) GetSafe(ctx context.Context, id int64) (Safe, error) {
	s, ok := r.safes[id]
	if !ok {
		return Safe{}, ErrSafeNotFound
	}
	return *s, nil
}

func (r *memorySafeRepo) ListSafes(ctx context.Context) ([]Safe, error) {
	var out []Safe
	for _, s := range r.safes {
		out = append(out, *s)
	}
	return out, nil
}

func (r *memorySafeRepo) ListTransactions(ctx context.Context, safeID int64, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range r.ledger {
		if tx.SafeID == safeID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *memorySafeRepo) GetSafeForUpdate(ctx context.Context, safeID int64) (Safe, error) {
	return r.GetSafe(ctx, safeID)
}

func (r *memorySafeRepo) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	r.nextTx++
	tx.ID = r.nextTx
	tx.CreatedAt = time.Now()
	r.ledger = append(r.ledger, tx)
	return tx.ID, nil
}

func (r *memorySafeRepo) AdjustBalances(ctx context.Context, safeID int64, deltaUSD, deltaLYD float64) error {
	s, ok := r.safes[safeID]
	if !ok {
		return ErrSafeNotFound
	}
	s.BalanceUSD += deltaUSD
	s.BalanceLYD += deltaLYD
	return nil
}

func (r *memorySafeRepo) SumLedger(ctx context.Context, safeID int64) (float64, float64, error) {
	var usd, lyd float64
	for _, tx := range r.ledger {
		if tx.SafeID != safeID {
			continue
		}
		sign := balanceSign(tx.Type, tx.ReferenceType)
		usd += sign * tx.AmountUSD
		lyd += sign * tx.AmountLYD
	}
	return usd, lyd, nil
}

func (r *memorySafeRepo) SetBalances(ctx context.Context, safeID int64, usd, lyd float64) error {
	s, ok := r.safes[safeID]
	if !ok {
		return ErrSafeNotFound
	}
	s.BalanceUSD = usd
	s.BalanceLYD = lyd
	return nil
}

func TestPostDepositAndWithdrawalMoveBalance(t *testing.T) {
	repo := newMemorySafeRepo()
	id := repo.addSafe("MAIN")
	svc := NewService(repo, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{SafeID: id, Type: TypeDeposit, AmountLYD: 500})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{SafeID: id, Type: TypeWithdrawal, AmountLYD: 120})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{SafeID: id, Type: TypeSettlement, AmountUSD: 40})
	require.NoError(t, err)

	safe, err := svc.GetSafe(context.Background(), id)
	require.NoError(t, err)
	require.InDelta(t, 380.0, safe.BalanceLYD, 0.001)
	require.InDelta(t, -40.0, safe.BalanceUSD, 0.001)
	require.Len(t, repo.ledger, 3)
}

func TestPostRejectsTransfersAndZeroAmounts(t *testing.T) {
	repo := newMemorySafeRepo()
	id := repo.addSafe("MAIN")
	svc := NewService(repo, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{SafeID: id, Type: TypeTransfer, AmountLYD: 10})
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = svc.Post(context.Background(), PostInput{SafeID: id, Type: TypeDeposit})
	require.ErrorIs(t, err, ErrZeroAmount)

	_, err = svc.Post(context.Background(), PostInput{SafeID: id, Type: "loan", AmountLYD: 10})
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = svc.Post(context.Background(), PostInput{SafeID: 999, Type: TypeDeposit, AmountLYD: 10})
	require.ErrorIs(t, err, ErrSafeNotFound)
}

func TestCurrencyAdjustmentMayCarryNegativeAmounts(t *testing.T) {
	repo := newMemorySafeRepo()
	id := repo.addSafe("MAIN")
	svc := NewService(repo, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{SafeID: id, Type: TypeCurrencyAdjustment, AmountLYD: -35, ReferenceType: RefRecalculation})
	require.NoError(t, err)

	safe, err := svc.GetSafe(context.Background(), id)
	require.NoError(t, err)
	require.InDelta(t, -35.0, safe.BalanceLYD, 0.001)
}

func TestTransferPostsOffsettingPair(t *testing.T) {
	repo := newMemorySafeRepo()
	src := repo.addSafe("MAIN")
	dst := repo.addSafe("BRANCH")
	svc := NewService(repo, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{SafeID: src, Type: TypeDeposit, AmountLYD: 1000})
	require.NoError(t, err)

	out, in, err := svc.Transfer(context.Background(), TransferInput{
		SrcSafeID: src, DstSafeID: dst, AmountLYD: 300, Description: "float top-up",
	})
	require.NoError(t, err)
	require.Equal(t, RefTransferOut, out.ReferenceType)
	require.Equal(t, RefTransferIn, in.ReferenceType)

	srcSafe, _ := svc.GetSafe(context.Background(), src)
	dstSafe, _ := svc.GetSafe(context.Background(), dst)
	require.InDelta(t, 700.0, srcSafe.BalanceLYD, 0.001)
	require.InDelta(t, 300.0, dstSafe.BalanceLYD, 0.001)
}

func TestTransferToSelfOrMissingSafeFails(t *testing.T) {
	repo := newMemorySafeRepo()
	src := repo.addSafe("MAIN")
	svc := NewService(repo, nil, nil)

	_, _, err := svc.Transfer(context.Background(), TransferInput{SrcSafeID: src, DstSafeID: src, AmountLYD: 10})
	require.ErrorIs(t, err, ErrSameSafe)

	_, _, err = svc.Transfer(context.Background(), TransferInput{SrcSafeID: src, DstSafeID: 42, AmountLYD: 10})
	require.ErrorIs(t, err, ErrSafeNotFound)
	require.Empty(t, repo.ledger)
}

func TestRecomputeRepairsDriftedCache(t *testing.T) {
	repo := newMemorySafeRepo()
	id := repo.addSafe("MAIN")
	svc := NewService(repo, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{SafeID: id, Type: TypeDeposit, AmountLYD: 250})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{SafeID: id, Type: TypeWithdrawal, AmountLYD: 100})
	require.NoError(t, err)

	// Simulate cache drift.
	repo.safes[id].BalanceLYD = 9999

	safe, err := svc.Recompute(context.Background(), id)
	require.NoError(t, err)
	require.InDelta(t, 150.0, safe.BalanceLYD, 0.001)
	require.InDelta(t, 150.0, repo.safes[id].BalanceLYD, 0.001)
}

func TestCreateSafeValidatesCodeAndParent(t *testing.T) {
	repo := newMemorySafeRepo()
	svc := NewService(repo, nil, nil)

	main, err := svc.CreateSafe(context.Background(), CreateSafeInput{Name: "Main", Code: "MAIN"})
	require.NoError(t, err)

	_, err = svc.CreateSafe(context.Background(), CreateSafeInput{Name: "Other", Code: "MAIN"})
	require.ErrorIs(t, err, ErrDuplicateCode)

	_, err = svc.CreateSafe(context.Background(), CreateSafeInput{Name: "Child", Code: "SUB", ParentID: &main.ID})
	require.NoError(t, err)

	missing := int64(77)
	_, err = svc.CreateSafe(context.Background(), CreateSafeInput{Name: "Orphan", Code: "ORPH", ParentID: &missing})
	require.ErrorIs(t, err, ErrSafeNotFound)
}
