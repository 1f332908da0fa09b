// Package sync implements the server side of the row-version
// synchronization protocol: pull (incremental diff against a Client View
// Record) and push (exactly-once, in-order mutation processing).
//
// Сервер не ведет журнал изменений. Вместо этого каждый pull строит
// свежий снапшот версий всех видимых клиенту сущностей (CVR) и сравнивает
// его со снапшотом, на который ссылается cookie клиента.
package sync

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/iudanet/zettelsync/internal/server/storage"
)

// Entity collection names used in CVRs and patch keys.
const (
	CollectionWorkspace = "workspace"
	CollectionFolders   = "folders"
	CollectionFiles     = "files"

	// collectionClient учитывает lastMutationID клиентов группы;
	// участвует в диффе, но никогда не попадает в patch
	collectionClient = "client"
)

// CVREntries maps entity ID to the last-seen row version.
type CVREntries map[string]int64

// CVR (Client View Record) is a snapshot of everything one sync session
// has observed: collection name -> entity ID -> row version.
// Immutable once stored.
type CVR map[string]CVREntries

// entriesFromRows конвертирует результат range-скана в CVR-записи
func entriesFromRows(rows []storage.VersionRow) CVREntries {
	entries := make(CVREntries, len(rows))
	for _, row := range rows {
		entries[row.ID] = row.RowVersion
	}
	return entries
}

// EntryDiff holds the per-collection result of comparing two CVRs.
// Puts are IDs that are new or have a greater version in next;
// Dels are IDs that disappeared from next. Both sorted for determinism.
type EntryDiff struct {
	Puts []string
	Dels []string
}

// Diff maps collection name to its entry diff.
type Diff map[string]EntryDiff

// DiffCVR computes the entity-level delta between two CVR snapshots.
// Pure set/map comparison, no semantic knowledge of entity content.
func DiffCVR(prev, next CVR) Diff {
	names := mapset.NewThreadUnsafeSet[string]()
	for name := range prev {
		names.Add(name)
	}
	for name := range next {
		names.Add(name)
	}

	diff := make(Diff, names.Cardinality())
	for name := range names.Iter() {
		prevEntries := prev[name]
		nextEntries := next[name]

		var puts, dels []string
		for id, version := range nextEntries {
			prevVersion, ok := prevEntries[id]
			// Новая сущность или версия строго выросла
			if !ok || prevVersion < version {
				puts = append(puts, id)
			}
		}
		for id := range prevEntries {
			if _, ok := nextEntries[id]; !ok {
				dels = append(dels, id)
			}
		}

		sort.Strings(puts)
		sort.Strings(dels)
		diff[name] = EntryDiff{Puts: puts, Dels: dels}
	}

	return diff
}

// IsEmpty reports whether the diff contains no changes in any collection
func (d Diff) IsEmpty() bool {
	for _, entry := range d {
		if len(entry.Puts) > 0 || len(entry.Dels) > 0 {
			return false
		}
	}
	return true
}
