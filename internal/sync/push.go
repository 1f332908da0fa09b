package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/internal/server/storage"
	"github.com/iudanet/zettelsync/pkg/api"
)

var (
	metricPushes            = metrics.NewCounter("zettelsync_pushes_total")
	metricMutationsApplied  = metrics.NewCounter("zettelsync_mutations_applied_total")
	metricMutationsSkipped  = metrics.NewCounter("zettelsync_mutations_skipped_total")
	metricMutationsPoisoned = metrics.NewCounter("zettelsync_mutations_poisoned_total")
)

// Affected holds the IDs of entities touched by mutations. Нигде не
// используется в текущем ядре, кроме как задел под инвалидацию кэшей
// и poke-доставку.
type Affected struct {
	WorkspaceIDs mapset.Set[string]
	FolderIDs    mapset.Set[string]
	FileIDs      mapset.Set[string]
}

func newAffected() Affected {
	return Affected{
		WorkspaceIDs: mapset.NewThreadUnsafeSet[string](),
		FolderIDs:    mapset.NewThreadUnsafeSet[string](),
		FileIDs:      mapset.NewThreadUnsafeSet[string](),
	}
}

func (a Affected) merge(other Affected) {
	a.WorkspaceIDs.Append(other.WorkspaceIDs.ToSlice()...)
	a.FolderIDs.Append(other.FolderIDs.ToSlice()...)
	a.FileIDs.Append(other.FileIDs.ToSlice()...)
}

// Processor applies client-submitted mutations exactly once, in order,
// each inside its own storage transaction atomically with the
// lastMutationID bookkeeping update.
type Processor struct {
	logger *slog.Logger
	repo   storage.Repository
}

// NewProcessor creates a new mutation processor
func NewProcessor(logger *slog.Logger, repo storage.Repository) *Processor {
	return &Processor{
		logger: logger,
		repo:   repo,
	}
}

// Push processes all mutations of a push request in arrival order.
// Каждая мутация идет в своей транзакции: сбой мутации N не откатывает
// мутации 1..N-1. Упавший обработчик повторяется один раз в error mode -
// счетчик продвигается, эффект мутации навсегда теряется (poison bypass).
func (p *Processor) Push(ctx context.Context, userID string, req api.PushRequest) (Affected, error) {
	affected := newAffected()

	if req.ClientGroupID == "" {
		return affected, fmt.Errorf("%w: clientGroupID is required", ErrInvalidRequest)
	}

	// Декодируем и валидируем все мутации до первой транзакции:
	// ошибка схемы отклоняет запрос, не потребляя sequence numbers
	ops := make([]Op, len(req.Mutations))
	for i, m := range req.Mutations {
		op, err := decodeMutation(m)
		if err != nil {
			return affected, err
		}
		ops[i] = op
	}

	metricPushes.Inc()

	for i, m := range req.Mutations {
		mutAffected, err := p.processMutation(ctx, userID, req.ClientGroupID, m, ops[i], false)
		if err == nil {
			affected.merge(mutAffected)
			continue
		}

		// Ошибки авторизации и рассинхронизации фатальны для всего
		// запроса; error mode их не лечит
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrMutationFromFuture) {
			return affected, err
		}

		// Poison mutation: эффект отбрасывается, но lastMutationID
		// продвигается, чтобы поток мутаций не застрял навсегда
		p.logger.Error("mutation handler failed, replaying in error mode",
			"client_id", m.ClientID,
			"mutation_id", m.ID,
			"mutation_name", m.Name,
			"error", err,
		)

		if _, rerr := p.processMutation(ctx, userID, req.ClientGroupID, m, ops[i], true); rerr != nil {
			return affected, fmt.Errorf("error mode replay of mutation %d: %w", m.ID, rerr)
		}
		metricMutationsPoisoned.Inc()
	}

	return affected, nil
}

// processMutation executes one mutation inside one transaction:
// idempotency check, optional handler dispatch, bookkeeping update.
// In error mode the handler is skipped and only bookkeeping is written.
func (p *Processor) processMutation(
	ctx context.Context,
	userID, clientGroupID string,
	m api.Mutation,
	op Op,
	errorMode bool,
) (Affected, error) {
	affected := newAffected()

	err := p.repo.InTx(ctx, func(tx storage.Tx) error {
		// Транзакция может перезапускаться; начинаем с чистого состояния
		affected = newAffected()

		group, err := getOrCreateClientGroup(ctx, tx, clientGroupID, userID)
		if err != nil {
			return err
		}

		client, err := getOrCreateClient(ctx, tx, m.ClientID, clientGroupID)
		if err != nil {
			return err
		}

		nextMutationID := client.LastMutationID + 1

		// Уже применена - реплей подтвержденной мутации безопасен
		if m.ID < nextMutationID {
			p.logger.Debug("mutation already processed, skipping",
				"client_id", m.ClientID,
				"mutation_id", m.ID,
				"last_mutation_id", client.LastMutationID,
			)
			metricMutationsSkipped.Inc()
			return nil
		}

		// Клиент рассинхронизирован - фатально, требуется полный resync
		if m.ID > nextMutationID {
			return fmt.Errorf("%w: mutation %d, expected %d",
				ErrMutationFromFuture, m.ID, nextMutationID)
		}

		if !errorMode {
			mutAffected, err := p.mutate(ctx, tx, userID, op)
			if err != nil {
				return err
			}
			affected = mutAffected
			metricMutationsApplied.Inc()
		}

		// Bookkeeping фиксируется в той же транзакции, что и эффект
		client.LastMutationID = nextMutationID
		if err := tx.PutClientGroup(ctx, group); err != nil {
			return err
		}
		return tx.PutClient(ctx, client)
	})

	return affected, err
}

// getOrCreateClientGroup loads the client group record, lazily creating
// it with cvrVersion = 0 on first contact. Возвращает ErrUnauthorized,
// если группа принадлежит другому пользователю.
func getOrCreateClientGroup(ctx context.Context, tx storage.Tx, id, userID string) (*models.ClientGroup, error) {
	group, err := tx.GetClientGroup(ctx, id)
	if errors.Is(err, storage.ErrClientGroupNotFound) {
		return &models.ClientGroup{
			ID:         id,
			UserID:     userID,
			CVRVersion: 0,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	if group.UserID != userID {
		return nil, fmt.Errorf("%w: client group %s belongs to another user", ErrUnauthorized, id)
	}

	return group, nil
}

// getOrCreateClient loads the client record, lazily creating it with
// lastMutationID = 0
func getOrCreateClient(ctx context.Context, tx storage.Tx, id, clientGroupID string) (*models.Client, error) {
	client, err := tx.GetClient(ctx, id, clientGroupID)
	if errors.Is(err, storage.ErrClientNotFound) {
		return &models.Client{
			ID:             id,
			ClientGroupID:  clientGroupID,
			LastMutationID: 0,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	return client, nil
}
