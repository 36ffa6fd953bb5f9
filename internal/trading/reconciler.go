package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler sweeps for orders left pending by a crash or a failed
// compensation and finishes their sagas: a buy whose debit landed is
// refunded, a sell whose credit landed is completed forward, and anything
// without a recorded ledger movement is marked failed.
type Reconciler struct {
	service        *Service
	sweepInterval  time.Duration
	stuckThreshold time.Duration
}

func NewReconciler(service *Service) *Reconciler {
	return &Reconciler{
		service:        service,
		sweepInterval:  30 * time.Second,
		stuckThreshold: time.Minute,
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start(ctx context.Context) {
	logger := log.With().Str("component", "order_reconciler").Logger()
	logger.Info().Msg("starting order reconciler")

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down order reconciler")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				logger.Error().Err(err).Msg("reconciliation sweep failed")
			}
		}
	}
}

// Sweep resolves every pending order older than the stuck threshold.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.stuckThreshold)
	orders, err := r.service.db.GetStuckPendingOrders(ctx, cutoff)
	if err != nil {
		return err
	}

	if len(orders) == 0 {
		return nil
	}

	log.Info().Int("stuck_orders", len(orders)).Msg("reconciling stuck orders")

	for i := range orders {
		if err := r.resolve(ctx, &orders[i]); err != nil {
			log.Error().
				Err(err).
				Str("order_id", orders[i].OrderID).
				Msg("failed to reconcile order, will retry next sweep")
		}
	}
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, order *Order) error {
	s := r.service

	s.locks.Lock(order.AccountNumber)
	defer s.locks.Unlock(order.AccountNumber)

	// Re-read under the lock in case a live saga finished meanwhile
	current, err := s.db.GetOrder(ctx, order.OrderID)
	if err != nil {
		return err
	}
	if current == nil || current.Status != StatusPending {
		return nil
	}
	order = current

	// The ledger is the authority on whether the cash leg happened: both
	// legs write a transaction keyed by the order id.
	movement, err := s.ledger.FindTransaction(ctx, order.AccountNumber, order.OrderID)
	if err != nil {
		return err
	}

	switch order.Side {
	case SideBuy:
		if movement == nil {
			// Debit never landed, nothing to unwind
			return s.failOrder(ctx, order, "reconciled: no ledger movement recorded", nil)
		}
		if strings.Contains(order.Notes, NoteSharesApplied) {
			// Both legs committed, only the final status write was lost.
			// Refunding here would leave the account with the money and the
			// shares.
			return r.complete(ctx, order)
		}
		_, _, err := s.ledger.Deposit(ctx, order.AccountNumber, order.TotalAmount,
			fmt.Sprintf("Refund for reconciled order %s", order.OrderID), refundReference(order.OrderID))
		if err != nil {
			return err
		}
		return s.failOrder(ctx, order, "reconciled: funds refunded", nil)

	case SideSell:
		if movement != nil {
			// The credit landed, so both legs actually completed
			return r.complete(ctx, order)
		}
		if strings.Contains(order.Notes, NoteSharesRemoved) || strings.Contains(order.Notes, NoteReconcile) {
			// Shares came out but no cash came in; reinstate the position.
			// The pre-sell cost basis is gone at this point, so the order
			// price stands in when the position has to be recreated.
			err := s.holdings.Restore(ctx, order.AccountNumber, order.Symbol, order.Quantity,
				order.Price, float64(order.Quantity)*order.Price)
			if err != nil {
				return err
			}
			return s.failOrder(ctx, order, "reconciled: shares restored", nil)
		}
		return s.failOrder(ctx, order, "reconciled: no mutations recorded", nil)

	default:
		return s.failOrder(ctx, order, "reconciled: unknown side", nil)
	}
}

func (r *Reconciler) complete(ctx context.Context, order *Order) error {
	now := time.Now()
	order.Status = StatusExecuted
	order.ExecutedAt = &now
	order.Notes = "reconciled: completed"
	return r.service.db.UpdateOrder(ctx, order)
}
