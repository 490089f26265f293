// Package docstore описывает документное хранилище движка: чтение и запись
// отдельных документов, слабо-консистентные выборки и транзакции с
// семантикой compare-and-set. Движок корректен против любой реализации с
// этими примитивами; конкретные бэкенды живут в internal/storage.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound возвращается, если документа с таким ключом нет.
	ErrNotFound = errors.New("document not found")
	// ErrExists возвращается из Create, если ключ уже занят. Это основа
	// уникальности маркеров: создание по занятому ключу и есть конфликт.
	ErrExists = errors.New("document already exists")
	// ErrTxConflict возвращается, если транзакция не зафиксировалась после
	// исчерпания внутренних повторов из-за конкурентных писателей.
	ErrTxConflict = errors.New("transaction conflict")
)

// Document — версионированный документ коллекции. Data хранит JSON-тело.
type Document struct {
	ID        string
	Version   int64
	UpdatedAt time.Time
	Data      []byte
}

// Decode распаковывает тело документа в v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Filter задаёт условие равенства по полю JSON-тела.
type Filter struct {
	Field string
	Value any
}

// Query — слабо-консистентная выборка: результаты могут отставать от
// последних записей, порядок best-effort. Инварианты движка никогда не
// опираются на свежесть выборок — только на транзакционные чтения.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

// Tx — транзакционный контекст: чтения фиксируют версии, записи
// буферизуются и применяются атомарно при фиксации.
type Tx interface {
	// Get читает документ с фиксацией версии; отсутствие — ErrNotFound.
	Get(collection, id string) (Document, error)
	// Create записывает новый документ; занятый ключ — ErrExists.
	Create(collection, id string, value any) error
	// Set записывает документ независимо от существования.
	Set(collection, id string, value any) error
	// Update перезаписывает существующий документ; отсутствие — ErrNotFound.
	Update(collection, id string, value any) error
	// Delete удаляет документ; отсутствие не считается ошибкой.
	Delete(collection, id string) error
}

// Store — документное хранилище. RunTransaction повторяет fn при конфликте
// фиксации ограниченное число раз и затем возвращает ErrTxConflict;
// любая ошибка из fn откатывает транзакцию и возвращается без изменений.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
}
