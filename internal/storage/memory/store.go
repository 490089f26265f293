// Package memory реализует docstore.Store в памяти процесса. Используется
// в юнит-тестах и в локальном запуске без Postgres. Транзакции выполняются
// оптимистично: чтения запоминают версии, фиксация проверяет, что никто из
// конкурентов эти документы не перезаписал.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prasadamconnect/engine/internal/docstore"
)

const maxTxAttempts = 3

type record struct {
	data      []byte
	version   int64
	updatedAt time.Time
}

// Store — потокобезопасное документное хранилище в памяти.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]record
	now         func() time.Time
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]record),
		now:         time.Now,
	}
}

func (s *Store) lookup(collection, id string) (record, bool) {
	col, ok := s.collections[collection]
	if !ok {
		return record{}, false
	}
	rec, ok := col[id]
	return rec, ok
}

// Get возвращает документ или docstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return docstore.Document{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.lookup(collection, id)
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return toDocument(id, rec), nil
}

// Query выполняет выборку с фильтрами равенства, сортировкой и лимитом.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[q.Collection]
	matched := make([]docstore.Document, 0, len(col))
	for id, rec := range col {
		body := decodeBody(rec.data)
		if !matchFilters(body, q.Filters) {
			continue
		}
		matched = append(matched, toDocument(id, rec))
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			cmp := compareField(matched[i].Data, matched[j].Data, q.OrderBy)
			if q.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	} else {
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// RunTransaction выполняет fn оптимистично и повторяет её при конфликте
// версий, но не более maxTxAttempts раз.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &memTx{store: s, reads: make(map[string]int64)}
		if err := fn(tx); err != nil {
			return err
		}
		if s.commit(tx) {
			return nil
		}
	}
	return docstore.ErrTxConflict
}

func (s *Store) commit(tx *memTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, seen := range tx.reads {
		collection, id := splitKey(key)
		rec, ok := s.lookup(collection, id)
		current := int64(0)
		if ok {
			current = rec.version
		}
		if current != seen {
			return false
		}
	}

	now := s.now().UTC()
	for _, op := range tx.ops {
		col, ok := s.collections[op.collection]
		if !ok {
			col = make(map[string]record)
			s.collections[op.collection] = col
		}
		if op.delete {
			delete(col, op.id)
			continue
		}
		prev := col[op.id]
		col[op.id] = record{data: op.data, version: prev.version + 1, updatedAt: now}
	}
	return true
}

type txOp struct {
	collection string
	id         string
	data       []byte
	delete     bool
}

type memTx struct {
	store *Store
	reads map[string]int64
	ops   []txOp
}

func key(collection, id string) string { return collection + "\x00" + id }

func splitKey(k string) (string, string) {
	i := strings.IndexByte(k, 0)
	return k[:i], k[i+1:]
}

// snapshot читает текущее состояние ключа и фиксирует его версию в read-set.
func (t *memTx) snapshot(collection, id string) (record, bool) {
	t.store.mu.RLock()
	rec, ok := t.store.lookup(collection, id)
	t.store.mu.RUnlock()

	version := int64(0)
	if ok {
		version = rec.version
	}
	t.reads[key(collection, id)] = version
	return rec, ok
}

// pending возвращает последнюю буферизованную запись по ключу, если она есть.
func (t *memTx) pending(collection, id string) (txOp, bool) {
	for i := len(t.ops) - 1; i >= 0; i-- {
		if t.ops[i].collection == collection && t.ops[i].id == id {
			return t.ops[i], true
		}
	}
	return txOp{}, false
}

func (t *memTx) Get(collection, id string) (docstore.Document, error) {
	rec, ok := t.snapshot(collection, id)
	if op, buffered := t.pending(collection, id); buffered {
		if op.delete {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{ID: id, Data: op.data}, nil
	}
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return toDocument(id, rec), nil
}

func (t *memTx) Create(collection, id string, value any) error {
	_, exists := t.snapshot(collection, id)
	if op, buffered := t.pending(collection, id); buffered {
		exists = !op.delete
	}
	if exists {
		return docstore.ErrExists
	}
	return t.buffer(collection, id, value)
}

func (t *memTx) Set(collection, id string, value any) error {
	t.snapshot(collection, id)
	return t.buffer(collection, id, value)
}

func (t *memTx) Update(collection, id string, value any) error {
	_, exists := t.snapshot(collection, id)
	if op, buffered := t.pending(collection, id); buffered {
		exists = !op.delete
	}
	if !exists {
		return docstore.ErrNotFound
	}
	return t.buffer(collection, id, value)
}

func (t *memTx) Delete(collection, id string) error {
	t.snapshot(collection, id)
	t.ops = append(t.ops, txOp{collection: collection, id: id, delete: true})
	return nil
}

func (t *memTx) buffer(collection, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, id, err)
	}
	t.ops = append(t.ops, txOp{collection: collection, id: id, data: data})
	return nil
}

func toDocument(id string, rec record) docstore.Document {
	data := make([]byte, len(rec.data))
	copy(data, rec.data)
	return docstore.Document{ID: id, Version: rec.version, UpdatedAt: rec.updatedAt, Data: data}
}

func decodeBody(data []byte) map[string]any {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil
	}
	return body
}

func matchFilters(body map[string]any, filters []docstore.Filter) bool {
	for _, f := range filters {
		got, ok := body[f.Field]
		if !ok {
			return false
		}
		if !valueEqual(got, f.Value) {
			return false
		}
	}
	return true
}

// valueEqual сравнивает JSON-значение документа с фильтром, приводя числа
// к float64, а время к RFC3339.
func valueEqual(got, want any) bool {
	switch w := normalize(want).(type) {
	case string:
		g, ok := got.(string)
		return ok && g == w
	case float64:
		g, ok := got.(float64)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case nil:
		return got == nil
	default:
		return false
	}
}

func normalize(v any) any {
	switch x := v.(type) {
	case string, bool, float64, nil:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func compareField(a, b []byte, field string) int {
	av, aok := decodeBody(a)[field]
	bv, bok := decodeBody(b)[field]
	if !aok || !bok {
		switch {
		case aok:
			return -1
		case bok:
			return 1
		default:
			return 0
		}
	}

	as, aIsStr := av.(string)
	bs, bIsStr := bv.(string)
	if aIsStr && bIsStr {
		at, aerr := time.Parse(time.RFC3339Nano, as)
		bt, berr := time.Parse(time.RFC3339Nano, bs)
		if aerr == nil && berr == nil {
			return at.Compare(bt)
		}
		return strings.Compare(as, bs)
	}

	af, aIsNum := av.(float64)
	bf, bIsNum := bv.(float64)
	if aIsNum && bIsNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return 0
}
