package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/internal/server/storage"
	"github.com/iudanet/zettelsync/pkg/api"
)

var (
	metricPulls        = metrics.NewCounter("zettelsync_pulls_total")
	metricPullsNoop    = metrics.NewCounter("zettelsync_pulls_noop_total")
	metricCVRHits      = metrics.NewCounter("zettelsync_cvr_store_hits_total")
	metricCVRMisses    = metrics.NewCounter("zettelsync_cvr_store_misses_total")
	metricFullResyncs  = metrics.NewCounter("zettelsync_full_resyncs_total")
	metricPullEntities = metrics.NewCounter("zettelsync_pull_patch_entities_total")
)

// Puller computes incremental pull responses: the minimal patch that
// brings a client's last known state (identified by its cookie) current.
type Puller struct {
	logger *slog.Logger
	repo   storage.Repository
	cvrs   Store
}

// NewPuller creates a new pull handler
func NewPuller(logger *slog.Logger, repo storage.Repository, cvrs Store) *Puller {
	return &Puller{
		logger: logger,
		repo:   repo,
		cvrs:   cvrs,
	}
}

// entityPut - одна сущность для put-операции патча, тело уже
// сериализовано внутри транзакции
type entityPut struct {
	id    string
	value json.RawMessage
}

// entityDelta - изменения одной коллекции
type entityDelta struct {
	dels []string
	puts []entityPut
}

// pullResult - результат транзакционной части pull; nil означает no-op
type pullResult struct {
	entities       map[string]entityDelta
	clients        CVREntries
	nextCVR        CVR
	nextCVRVersion int64
}

// Pull produces {cookie, lastMutationIDChanges, patch} for a client
// group's previous cookie (possibly absent) and the current state.
func (p *Puller) Pull(ctx context.Context, userID string, req api.PullRequest) (*api.PullResponse, error) {
	if req.ClientGroupID == "" {
		return nil, fmt.Errorf("%w: clientGroupID is required", ErrInvalidRequest)
	}
	if req.Cookie != nil && req.Cookie.Order < 0 {
		return nil, fmt.Errorf("%w: cookie.order must be non-negative", ErrInvalidRequest)
	}

	metricPulls.Inc()

	// Базовый CVR: снапшот, на который ссылается cookie. Отсутствие
	// (нет cookie, eviction, рестарт с memory store) вынуждает полный resync
	var baseCVR CVR
	hasBase := false
	if req.Cookie != nil {
		if cvr, ok := p.cvrs.Get(req.Cookie.CVRID); ok {
			baseCVR = cvr
			hasBase = true
			metricCVRHits.Inc()
		} else {
			metricCVRMisses.Inc()
		}
	}
	if baseCVR == nil {
		baseCVR = CVR{}
	}

	var result *pullResult
	err := p.repo.InTx(ctx, func(tx storage.Tx) error {
		var err error
		result, err = p.pullTx(ctx, tx, userID, req, baseCVR, hasBase)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Пустой дифф при живом базовом CVR: cookie не меняется
	if result == nil {
		metricPullsNoop.Inc()
		return &api.PullResponse{
			Cookie:                req.Cookie,
			LastMutationIDChanges: map[string]int64{},
			Patch:                 []api.PatchOperation{},
		}, nil
	}

	// Новый CVR публикуется после коммита; потеря записи не страшна -
	// клиент просто получит полный resync на следующем pull
	cvrID := uuid.NewString()
	if err := p.cvrs.Put(cvrID, result.nextCVR); err != nil {
		p.logger.Error("failed to store cvr snapshot", "cvr_id", cvrID, "error", err)
	}

	patch := buildPatch(hasBase, result.entities)
	metricPullEntities.Add(len(patch))
	if !hasBase {
		metricFullResyncs.Inc()
	}

	p.logger.Info("pull completed",
		"client_group_id", req.ClientGroupID,
		"full_resync", !hasBase,
		"next_cvr_version", result.nextCVRVersion,
		"patch_ops", len(patch),
	)

	return &api.PullResponse{
		Cookie: &api.Cookie{
			Order: result.nextCVRVersion,
			CVRID: cvrID,
		},
		LastMutationIDChanges: result.clients,
		Patch:                 patch,
	}, nil
}

// pullTx is the transactional part of a pull: authorization, current CVR
// construction, diff, entity body fetch and cvrVersion bump.
// Returns nil when a baseline existed and nothing changed.
func (p *Puller) pullTx(
	ctx context.Context,
	tx storage.Tx,
	userID string,
	req api.PullRequest,
	baseCVR CVR,
	hasBase bool,
) (*pullResult, error) {
	group, err := getOrCreateClientGroup(ctx, tx, req.ClientGroupID, userID)
	if err != nil {
		return nil, err
	}

	workspaceRows, err := tx.SearchWorkspaces(ctx, userID)
	if err != nil {
		return nil, err
	}
	folderRows, err := tx.SearchFolders(ctx, userID)
	if err != nil {
		return nil, err
	}
	fileRows, err := tx.SearchFiles(ctx, userID)
	if err != nil {
		return nil, err
	}
	clientRows, err := tx.SearchClients(ctx, req.ClientGroupID)
	if err != nil {
		return nil, err
	}

	nextCVR := CVR{
		CollectionWorkspace: entriesFromRows(workspaceRows),
		CollectionFolders:   entriesFromRows(folderRows),
		CollectionFiles:     entriesFromRows(fileRows),
		collectionClient:    entriesFromRows(clientRows),
	}

	diff := DiffCVR(baseCVR, nextCVR)
	if hasBase && diff.IsEmpty() {
		return nil, nil
	}

	// Тела сущностей нужны только для изменившихся ID, пачкой на коллекцию
	workspaces, err := tx.GetWorkspacesByID(ctx, diff[CollectionWorkspace].Puts)
	if err != nil {
		return nil, err
	}
	folders, err := tx.GetFoldersByID(ctx, diff[CollectionFolders].Puts)
	if err != nil {
		return nil, err
	}
	files, err := tx.GetFilesByID(ctx, diff[CollectionFiles].Puts)
	if err != nil {
		return nil, err
	}

	entities := make(map[string]entityDelta, 3)

	workspacePuts, err := marshalPuts(workspaces, func(w *models.Workspace) string { return w.ID })
	if err != nil {
		return nil, err
	}
	entities[CollectionWorkspace] = entityDelta{dels: diff[CollectionWorkspace].Dels, puts: workspacePuts}

	folderPuts, err := marshalPuts(folders, func(f *models.Folder) string { return f.ID })
	if err != nil {
		return nil, err
	}
	entities[CollectionFolders] = entityDelta{dels: diff[CollectionFolders].Dels, puts: folderPuts}

	filePuts, err := marshalPuts(files, func(f *models.File) string { return f.ID })
	if err != nil {
		return nil, err
	}
	entities[CollectionFiles] = entityDelta{dels: diff[CollectionFiles].Dels, puts: filePuts}

	// Изменившиеся счетчики клиентов группы
	clients := CVREntries{}
	for _, clientID := range diff[collectionClient].Puts {
		clients[clientID] = nextCVR[collectionClient][clientID]
	}

	var cookieOrder int64
	if req.Cookie != nil {
		cookieOrder = req.Cookie.Order
	}
	nextCVRVersion := max(cookieOrder, group.CVRVersion) + 1

	group.CVRVersion = nextCVRVersion
	if err := tx.PutClientGroup(ctx, group); err != nil {
		return nil, err
	}

	return &pullResult{
		entities:       entities,
		clients:        clients,
		nextCVR:        nextCVR,
		nextCVRVersion: nextCVRVersion,
	}, nil
}

// marshalPuts сериализует загруженные сущности в put-значения патча
func marshalPuts[T any](items []T, id func(T) string) ([]entityPut, error) {
	puts := make([]entityPut, 0, len(items))
	for _, item := range items {
		value, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entity: %w", err)
		}
		puts = append(puts, entityPut{id: id(item), value: value})
	}
	return puts, nil
}

// patchCollections задает стабильный порядок коллекций в патче.
// Ключи уникальны между коллекциями, так что порядок не влияет на
// корректность - только на воспроизводимость ответов.
var patchCollections = []string{CollectionWorkspace, CollectionFolders, CollectionFiles}

// buildPatch builds the ordered operation list for a pull response.
// Без базового CVR патч начинается с clear: клиент сбрасывает весь
// локальный кэш (full resync).
func buildPatch(hasBase bool, entities map[string]entityDelta) []api.PatchOperation {
	patch := []api.PatchOperation{}
	if !hasBase {
		patch = append(patch, api.PatchOperation{Op: api.OpClear})
	}

	for _, name := range patchCollections {
		delta := entities[name]
		for _, id := range delta.dels {
			patch = append(patch, api.PatchOperation{
				Op:  api.OpDel,
				Key: name + "/" + id,
			})
		}
		for _, put := range delta.puts {
			patch = append(patch, api.PatchOperation{
				Op:    api.OpPut,
				Key:   name + "/" + put.id,
				Value: put.value,
			})
		}
	}

	return patch
}
