package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"walletpulse/internal/models"
	"walletpulse/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Wallets ----------------------------------------------------------------

func (s *Store) CreateWallet(ctx context.Context, item *models.Wallet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Address = strings.TrimSpace(item.Address)
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetWalletByID(ctx context.Context, id uint64) (*models.Wallet, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Wallet
	err := s.db.WithContext(ctx).Model(&models.Wallet{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	var item models.Wallet
	err := s.db.WithContext(ctx).Model(&models.Wallet{}).Where("address = ?", address).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) FindActiveWalletsByAddresses(ctx context.Context, addresses []string) ([]models.Wallet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	addresses = cleanStrings(addresses)
	if len(addresses) == 0 {
		return nil, nil
	}
	var items []models.Wallet
	if err := s.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("address IN ?", addresses).
		Where("active = ?", true).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListWallets(ctx context.Context, params repository.ListWalletsParams) ([]models.Wallet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.walletQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Wallet
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountWallets(ctx context.Context, params repository.ListWalletsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.walletQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) walletQuery(ctx context.Context, params repository.ListWalletsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Wallet{})
	if params.Active != nil {
		query = query.Where("active = ?", *params.Active)
	}
	return query
}

// --- Staged trades ----------------------------------------------------------

func (s *Store) InsertStagedTrade(ctx context.Context, item *models.StagedTrade) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tx_signature"},
			{Name: "wallet_id"},
			{Name: "side"},
		},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListRunnableStagedTrades returns pending and previously failed staged
// trades in timestamp order. Failed rows stay eligible: valuation failures
// are transient and must never be treated as dead.
func (s *Store) ListRunnableStagedTrades(ctx context.Context, limit int) ([]models.StagedTrade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StagedTrade
	if err := s.db.WithContext(ctx).
		Model(&models.StagedTrade{}).
		Where("status IN ?", []string{models.StagedPending, models.StagedFailed}).
		Order("trade_time asc, id asc").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkStagedProcessed(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.StagedTrade{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.StagedProcessed,
			"last_error": nil,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) MarkStagedFailed(ctx context.Context, id uint64, errMsg string) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.StagedTrade{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.StagedFailed,
			"last_error": errMsg,
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *Store) DeleteStagedTrade(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StagedTrade{}).Error
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tx_signature"},
			{Name: "wallet_id"},
			{Name: "side"},
		},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetTradeByID(ctx context.Context, id uint64) (*models.Trade, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).Model(&models.Trade{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListWalletTradeHistory returns the complete ordered history the lot engine
// recomputes from. Ordering is (trade_time, id) so same-timestamp trades are
// replayed in commit order.
func (s *Store) ListWalletTradeHistory(ctx context.Context, walletID uint64, tokenID *string) ([]models.Trade, error) {
	if s == nil || s.db == nil || walletID == 0 {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("wallet_id = ?", walletID)
	if tokenID != nil && strings.TrimSpace(*tokenID) != "" {
		query = query.Where("token_id = ?", strings.TrimSpace(*tokenID))
	}
	var items []models.Trade
	if err := query.Order("trade_time asc, id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListBuyTradesForToken(ctx context.Context, tokenID string, since, until time.Time) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, nil
	}
	var items []models.Trade
	if err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("token_id = ?", tokenID).
		Where("side = ?", models.SideBuy).
		Where("trade_time >= ?", since).
		Where("trade_time <= ?", until).
		Order("trade_time asc, id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.tradeQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "trade_time")
	var items []models.Trade
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.tradeQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) tradeQuery(ctx context.Context, params repository.ListTradesParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Trade{})
	if params.WalletID != nil && *params.WalletID > 0 {
		query = query.Where("wallet_id = ?", *params.WalletID)
	}
	if params.TokenID != nil && strings.TrimSpace(*params.TokenID) != "" {
		query = query.Where("token_id = ?", strings.TrimSpace(*params.TokenID))
	}
	if params.Side != nil && strings.TrimSpace(*params.Side) != "" {
		query = query.Where("side = ?", strings.TrimSpace(*params.Side))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("trade_time >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("trade_time <= ?", *params.Until)
	}
	return query
}

// --- Closed lots & open positions -------------------------------------------

// ReplaceWalletLots swaps the full derived set for a wallet (optionally one
// token) atomically. A crash mid-write must never leave a mix of old and new
// rows, so delete and insert share one transaction.
func (s *Store) ReplaceWalletLots(ctx context.Context, walletID uint64, tokenID *string, lots []models.ClosedLot, positions []models.OpenPosition) error {
	if s == nil || s.db == nil || walletID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lotScope := tx.Where("wallet_id = ?", walletID)
		posScope := tx.Where("wallet_id = ?", walletID)
		if tokenID != nil && strings.TrimSpace(*tokenID) != "" {
			token := strings.TrimSpace(*tokenID)
			lotScope = lotScope.Where("token_id = ?", token)
			posScope = posScope.Where("token_id = ?", token)
		}
		if err := lotScope.Delete(&models.ClosedLot{}).Error; err != nil {
			return err
		}
		if err := posScope.Delete(&models.OpenPosition{}).Error; err != nil {
			return err
		}
		if err := createInBatches(tx, lots, 200); err != nil {
			return err
		}
		return createInBatches(tx, positions, 200)
	})
}

func (s *Store) ListClosedLots(ctx context.Context, params repository.ListLotsParams) ([]models.ClosedLot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.lotQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "exit_time")
	var items []models.ClosedLot
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountClosedLots(ctx context.Context, params repository.ListLotsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.lotQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) lotQuery(ctx context.Context, params repository.ListLotsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.ClosedLot{})
	if params.WalletID != nil && *params.WalletID > 0 {
		query = query.Where("wallet_id = ?", *params.WalletID)
	}
	if params.TokenID != nil && strings.TrimSpace(*params.TokenID) != "" {
		query = query.Where("token_id = ?", strings.TrimSpace(*params.TokenID))
	}
	return query
}

func (s *Store) ListOpenPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.OpenPosition, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.OpenPosition{})
	if params.WalletID != nil && *params.WalletID > 0 {
		query = query.Where("wallet_id = ?", *params.WalletID)
	}
	if params.TokenID != nil && strings.TrimSpace(*params.TokenID) != "" {
		query = query.Where("token_id = ?", strings.TrimSpace(*params.TokenID))
	}
	var items []models.OpenPosition
	if err := query.
		Order("first_entry_time asc").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Signals ----------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil || item.ID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"meta":          item.Meta,
			"cluster_start": item.ClusterStart,
			"cluster_end":   item.ClusterEnd,
			"expires_at":    item.ExpiresAt,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (s *Store) FindOverlappingSignal(ctx context.Context, tokenID, model string, start, end time.Time) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("token_id = ?", tokenID).
		Where("model = ?", model).
		Where("cluster_start <= ?", end).
		Where("cluster_end >= ?", start).
		Order("cluster_start asc").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.signalQuery(ctx, params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Signal
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.signalQuery(ctx, params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) signalQuery(ctx context.Context, params repository.ListSignalsParams) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&models.Signal{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.TokenID != nil && strings.TrimSpace(*params.TokenID) != "" {
		query = query.Where("token_id = ?", strings.TrimSpace(*params.TokenID))
	}
	if params.WalletID != nil && *params.WalletID > 0 {
		query = query.Where("wallet_id = ?", *params.WalletID)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

func (s *Store) ExpireDueSignals(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("status = ?", models.SignalActive).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", now).
		Updates(map[string]any{
			"status":     models.SignalExpired,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}

// --- Processing queue -------------------------------------------------------

// EnqueueJob inserts a job unless an equivalent pending one already exists;
// duplicate work is coalesced rather than queued twice. The existence check
// races with concurrent enqueues, which is acceptable under at-least-once
// semantics.
func (s *Store) EnqueueJob(ctx context.Context, item *models.QueueJob) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.NextRunAt.IsZero() {
		item.NextRunAt = time.Now().UTC()
	}
	var existing int64
	query := s.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("wallet_id = ?", item.WalletID).
		Where("job_type = ?", item.JobType).
		Where("status = ?", models.JobPending)
	if len(item.Payload) > 0 {
		query = query.Where("payload = ?", item.Payload)
	}
	if err := query.Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// ClaimNextJob selects the best runnable candidate and flips it to
// processing with a conditional update. Zero rows affected means another
// worker won the race; selection is retried until no candidate remains.
func (s *Store) ClaimNextJob(ctx context.Context, now time.Time) (*models.QueueJob, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	for {
		var candidate models.QueueJob
		err := s.db.WithContext(ctx).
			Model(&models.QueueJob{}).
			Where("status = ?", models.JobPending).
			Where("next_run_at <= ?", now).
			Order("priority desc, created_at asc").
			First(&candidate).Error
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		res := s.db.WithContext(ctx).
			Model(&models.QueueJob{}).
			Where("id = ?", candidate.ID).
			Where("status = ?", models.JobPending).
			Updates(map[string]any{
				"status":          models.JobProcessing,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_attempt_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		candidate.Status = models.JobProcessing
		candidate.Attempts++
		candidate.LastAttemptAt = &now
		return &candidate, nil
	}
}

func (s *Store) MarkJobCompleted(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.QueueJob{}).Error
}

// MarkJobFailed re-arms the job with a delay, or parks it as failed once
// attempts reach maxAttempts. A single conditional update guarded on the
// processing status keeps it atomic against the stale-claim sweep: a row the
// sweep already returned to pending is left untouched.
func (s *Store) MarkJobFailed(ctx context.Context, id uint64, errMsg string, retryDelay time.Duration, maxAttempts int) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if retryDelay <= 0 {
		retryDelay = 30 * time.Second
	}
	return s.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("id = ?", id).
		Where("status = ?", models.JobProcessing).
		Updates(map[string]any{
			"status": gorm.Expr(
				"CASE WHEN ? > 0 AND attempts >= ? THEN ? ELSE ? END",
				maxAttempts, maxAttempts, models.JobFailed, models.JobPending,
			),
			"last_error":  errMsg,
			"next_run_at": time.Now().UTC().Add(retryDelay),
		}).Error
}

// ResetStaleProcessingJobs returns crashed claims to the pending pool.
func (s *Store) ResetStaleProcessingJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if olderThan <= 0 {
		olderThan = 10 * time.Minute
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	res := s.db.WithContext(ctx).
		Model(&models.QueueJob{}).
		Where("status = ?", models.JobProcessing).
		Where("last_attempt_at < ?", cutoff).
		Updates(map[string]any{
			"status":      models.JobPending,
			"next_run_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) ListWalletIDsWithTrades(ctx context.Context) ([]uint64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var ids []uint64
	if err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Distinct("wallet_id").
		Order("wallet_id asc").
		Pluck("wallet_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[i:end]
		if err := db.Create(&chunk).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}
