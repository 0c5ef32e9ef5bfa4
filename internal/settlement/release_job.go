package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"github.com/stallside/stallside-backend/internal/escrow"
	"github.com/stallside/stallside-backend/pkg/db/models"
	"github.com/stallside/stallside-backend/pkg/enums"
	pkgerrors "github.com/stallside/stallside-backend/pkg/errors"
	"github.com/stallside/stallside-backend/pkg/logger"
)

const releaseJobName = "release-due-escrows"

// ReleaseJobParams configure the escrow release job.
type ReleaseJobParams struct {
	Escrow    escrow.Service
	Processor ProcessorClient
	Logger    *logger.Logger
	BatchSize int
	Now       func() time.Time
}

// ReleaseJob settles escrow holds whose hold window has elapsed.
type ReleaseJob struct {
	escrow    escrow.Service
	processor ProcessorClient
	logg      *logger.Logger
	batchSize int
	now       func() time.Time
}

// NewReleaseJob builds the release job.
func NewReleaseJob(params ReleaseJobParams) (*ReleaseJob, error) {
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	if params.Processor == nil {
		return nil, fmt.Errorf("processor client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ReleaseJob{
		escrow:    params.Escrow,
		processor: params.Processor,
		logg:      params.Logger,
		batchSize: batchSize,
		now:       now,
	}, nil
}

// Name implements Job.
func (j *ReleaseJob) Name() string { return releaseJobName }

// Run scans for due holds and settles each one independently. A failed
// record is left for the next cycle; it is never marked released.
func (j *ReleaseJob) Run(ctx context.Context) error {
	now := j.now()
	records, err := j.escrow.FindDueForRelease(ctx, now, j.batchSize)
	if err != nil {
		return fmt.Errorf("scanning due escrows: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	var errs error
	settled := 0
	for _, record := range records {
		if err := j.release(ctx, record, now); err != nil {
			if pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
				// Another worker won the CAS or a refund raced us.
				continue
			}
			recordCtx := j.logg.WithField(ctx, "escrow_record_id", record.ID.String())
			j.logg.Error(recordCtx, "escrow release failed; will retry next cycle", err)
			errs = multierr.Append(errs, err)
			continue
		}
		settled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"due": len(records), "settled": settled})
	j.logg.Info(logCtx, "escrow release pass finished")
	return errs
}

func (j *ReleaseJob) release(ctx context.Context, record models.EscrowRecord, now time.Time) error {
	switch record.State {
	case enums.EscrowStateAuthorized:
		if err := j.escrow.BeginRelease(ctx, record.ID, now); err != nil {
			return err
		}
		return j.captureAndSettle(ctx, record, now)
	case enums.EscrowStateReleasing:
		// A previous worker crashed mid-release; the idempotency key makes
		// the capture safe to replay.
		return j.captureAndSettle(ctx, record, now)
	case enums.EscrowStateCaptured:
		return j.transferAndSettle(ctx, record, now)
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow record not settleable")
	}
}

func (j *ReleaseJob) captureAndSettle(ctx context.Context, record models.EscrowRecord, now time.Time) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := j.processor.CapturePaymentIntent(ctx, record.PaymentIntentRef, "capture-"+record.ID.String())
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capturing payment intent")
	}

	if record.ConnectDestination != nil {
		// transfer_data was attached at authorization, so the capture
		// already routed the seller's share.
		return j.escrow.MarkReleased(ctx, record.ID, nil, now)
	}

	// No payout destination yet: funds stay with the platform until one is
	// backfilled, then a later pass transfers and releases.
	return j.escrow.MarkCaptured(ctx, record.ID)
}

func (j *ReleaseJob) transferAndSettle(ctx context.Context, record models.EscrowRecord, now time.Time) error {
	if record.ConnectDestination == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "captured record has no payout destination")
	}

	var transferRef string
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		created, err := j.processor.CreateTransfer(ctx, TransferInput{
			AmountCents:    record.SellerAmountCents,
			Currency:       strings.ToLower(enums.CurrencyUSD.String()),
			Destination:    *record.ConnectDestination,
			TransferGroup:  record.OrderID.String(),
			IdempotencyKey: "transfer-" + record.ID.String(),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		transferRef = created.ID
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transferring seller payout")
	}

	return j.escrow.MarkReleased(ctx, record.ID, &transferRef, now)
}
