// Package registrar реализует регистрацию и профиль пользователя поверх
// документного хранилища. Уникальность телефона и email обеспечивается
// маркерными документами: создание маркера по занятому ключу атомарно
// проваливается внутри той же транзакции, что и запись пользователя.
package registrar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/prasadamconnect/engine/internal/docstore"
	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/metrics"
	"github.com/prasadamconnect/engine/internal/storage/docrepo"
)

const defaultLoginHistoryLimit = 50

// RegistrationInput — данные новой регистрации. UID приходит из
// провайдера аутентификации и считается доверенным.
type RegistrationInput struct {
	UID     string `validate:"required"`
	Name    string `validate:"required,min=1,max=200"`
	Email   string `validate:"required,email"`
	Phone   string `validate:"required,e164"`
	Address string `validate:"max=500"`
	Role    domain.UserRole
}

// ProfileUpdate — частичное обновление профиля. nil-поле не трогается.
// Телефон после регистрации неизменяем и здесь отсутствует.
type ProfileUpdate struct {
	Name    *string
	Email   *string
	Address *string
}

// ClientContext описывает источник запроса для истории входов.
type ClientContext struct {
	UserAgent string
	IPAddress string
}

// Service — сервис регистрации и профиля.
type Service struct {
	store           docstore.Store
	validate        *validator.Validate
	logger          *log.Entry
	metrics         *metrics.EngineMetrics
	monthlyFeeCents int64
	now             func() time.Time
}

// NewService создаёт сервис. monthlyFeeCents — сбор подписки по умолчанию
// из конфигурации.
func NewService(store docstore.Store, em *metrics.EngineMetrics, monthlyFeeCents int64, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "registrar")
	}
	return &Service{
		store:           store,
		validate:        validator.New(),
		logger:          logger,
		metrics:         em,
		monthlyFeeCents: monthlyFeeCents,
		now:             time.Now,
	}
}

// CreateUserWithLogin атомарно создаёт пользователя, оба маркера
// уникальности и первую запись истории входов. Любой занятый маркер
// откатывает всю транзакцию.
func (s *Service) CreateUserWithLogin(ctx context.Context, input RegistrationInput, client ClientContext) (domain.User, error) {
	if err := s.validateInput(input); err != nil {
		return domain.User{}, err
	}

	now := s.now().UTC()
	phone := domain.NormalizePhone(input.Phone)
	email := domain.NormalizeEmail(input.Email)

	role := input.Role
	if role == "" {
		role = domain.RoleStudent
	}

	user := domain.User{
		UID:         input.UID,
		Name:        input.Name,
		Email:       email,
		PhoneNumber: phone,
		Address:     input.Address,
		Role:        role,
		Subscription: domain.Subscription{
			Active:          false,
			Waived:          true,
			MonthlyFeeCents: s.monthlyFeeCents,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		if _, err := tx.Get(domain.CollectionUsers, user.UID); err == nil {
			return domain.ConflictError{Field: "uid"}
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}

		marker := domain.UniquenessMarker{UID: user.UID, CreatedAt: now}

		marker.Value = phone
		if err := tx.Create(domain.CollectionPhoneMarkers, phone, marker); err != nil {
			if errors.Is(err, docstore.ErrExists) {
				return domain.ConflictError{Field: "phone"}
			}
			return err
		}

		marker.Value = email
		if err := tx.Create(domain.CollectionEmailMarkers, email, marker); err != nil {
			if errors.Is(err, docstore.ErrExists) {
				return domain.ConflictError{Field: "email"}
			}
			return err
		}

		if err := tx.Create(domain.CollectionUsers, user.UID, user); err != nil {
			if errors.Is(err, docstore.ErrExists) {
				return domain.ConflictError{Field: "uid"}
			}
			return err
		}

		login := domain.LoginRecord{
			ID:          uuid.NewString(),
			UID:         user.UID,
			PhoneNumber: phone,
			UserAgent:   client.UserAgent,
			IPAddress:   client.IPAddress,
			Timestamp:   now,
		}
		if err := tx.Create(domain.CollectionLoginHistory, login.ID, login); err != nil {
			return err
		}

		return s.enqueueUserEvent(tx, user.UID, "user.registered", map[string]any{
			"uid":   user.UID,
			"role":  string(role),
			"phone": phone,
		}, now)
	})
	if err != nil {
		return domain.User{}, s.mapErr(err)
	}

	if s.metrics != nil {
		s.metrics.RecordUserRegistered()
	}
	s.logger.WithFields(log.Fields{"uid": user.UID, "role": role}).Info("user registered")
	return user, nil
}

// CheckUserExists проверяет занятость телефона: сначала точечное чтение
// маркера, затем страховочная выборка по пользователям.
func (s *Service) CheckUserExists(ctx context.Context, phone string) (bool, error) {
	phone = domain.NormalizePhone(phone)
	if phone == "" {
		return false, domain.ValidationError{Field: "phone", Reason: "phone is required"}
	}

	_, err := s.store.Get(ctx, domain.CollectionPhoneMarkers, phone)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return false, fmt.Errorf("check phone marker: %w", err)
	}

	// Маркеры появились позже первых регистраций, поэтому отсутствие
	// маркера ещё не означает свободный номер.
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionUsers,
		Filters:    []docstore.Filter{{Field: "phoneNumber", Value: phone}},
		Limit:      1,
	})
	if err != nil {
		return false, fmt.Errorf("query users by phone: %w", err)
	}
	return len(docs) > 0, nil
}

// GetUser возвращает пользователя по uid.
func (s *Service) GetUser(ctx context.Context, uid string) (domain.User, error) {
	doc, err := s.store.Get(ctx, domain.CollectionUsers, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", uid, err)
	}

	var user domain.User
	if err := doc.Decode(&user); err != nil {
		return domain.User{}, fmt.Errorf("decode user %s: %w", uid, err)
	}
	return user, nil
}

// UpdateProfile изменяет имя, email и адрес. Смена email перевешивает
// маркер уникальности в той же транзакции: новый создаётся, старый
// удаляется, занятый новый — Conflict(email).
func (s *Service) UpdateProfile(ctx context.Context, uid string, update ProfileUpdate) (domain.User, error) {
	if update.Email != nil {
		normalized := domain.NormalizeEmail(*update.Email)
		if err := s.validate.Var(normalized, "required,email"); err != nil {
			return domain.User{}, domain.ValidationError{Field: "email", Reason: "invalid email"}
		}
		update.Email = &normalized
	}
	if update.Name != nil && *update.Name == "" {
		return domain.User{}, domain.ValidationError{Field: "name", Reason: "name must not be empty"}
	}

	var updated domain.User
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(domain.CollectionUsers, uid)
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		var user domain.User
		if err := doc.Decode(&user); err != nil {
			return fmt.Errorf("decode user %s: %w", uid, err)
		}

		now := s.now().UTC()
		if update.Email != nil && *update.Email != user.Email {
			marker := domain.UniquenessMarker{UID: uid, Value: *update.Email, CreatedAt: now}
			if err := tx.Create(domain.CollectionEmailMarkers, *update.Email, marker); err != nil {
				if errors.Is(err, docstore.ErrExists) {
					return domain.ConflictError{Field: "email"}
				}
				return err
			}
			if user.Email != "" {
				if err := tx.Delete(domain.CollectionEmailMarkers, user.Email); err != nil {
					return err
				}
			}
			user.Email = *update.Email
		}
		if update.Name != nil {
			user.Name = *update.Name
		}
		if update.Address != nil {
			user.Address = *update.Address
		}
		user.UpdatedAt = now

		if err := tx.Update(domain.CollectionUsers, uid, user); err != nil {
			return err
		}
		updated = user

		return s.enqueueUserEvent(tx, uid, "user.profile_updated", map[string]any{"uid": uid}, now)
	})
	if err != nil {
		return domain.User{}, s.mapErr(err)
	}
	return updated, nil
}

// RecordLogin добавляет запись истории входов.
func (s *Service) RecordLogin(ctx context.Context, uid, phone string, client ClientContext) (domain.LoginRecord, error) {
	record := domain.LoginRecord{
		ID:          uuid.NewString(),
		UID:         uid,
		PhoneNumber: domain.NormalizePhone(phone),
		UserAgent:   client.UserAgent,
		IPAddress:   client.IPAddress,
		Timestamp:   s.now().UTC(),
	}
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		return tx.Create(domain.CollectionLoginHistory, record.ID, record)
	})
	if err != nil {
		return domain.LoginRecord{}, s.mapErr(err)
	}
	return record, nil
}

// ListLoginHistory возвращает последние входы пользователя, новые раньше
// старых.
func (s *Service) ListLoginHistory(ctx context.Context, uid string, limit int) ([]domain.LoginRecord, error) {
	if limit <= 0 || limit > defaultLoginHistoryLimit {
		limit = defaultLoginHistoryLimit
	}

	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: domain.CollectionLoginHistory,
		Filters:    []docstore.Filter{{Field: "uid", Value: uid}},
		OrderBy:    "timestamp",
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query login history: %w", err)
	}

	records := make([]domain.LoginRecord, 0, len(docs))
	for _, doc := range docs {
		var record domain.LoginRecord
		if err := doc.Decode(&record); err != nil {
			return nil, fmt.Errorf("decode login record %s: %w", doc.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Unregister удаляет документ пользователя. Маркеры уникальности при этом
// остаются: телефон и email навсегда закреплены за старым uid.
// TODO: компенсационная очистка маркеров при откате регистрации.
func (s *Service) Unregister(ctx context.Context, uid string) error {
	err := s.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		if _, err := tx.Get(domain.CollectionUsers, uid); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return domain.ErrUserNotFound
			}
			return err
		}
		if err := tx.Delete(domain.CollectionUsers, uid); err != nil {
			return err
		}
		return s.enqueueUserEvent(tx, uid, "user.unregistered", map[string]any{"uid": uid}, s.now().UTC())
	})
	if err != nil {
		return s.mapErr(err)
	}
	s.logger.WithField("uid", uid).Info("user unregistered")
	return nil
}

// phonePattern — «+» и 10–15 цифр. Тег e164 допускает более короткие
// номера, поэтому длина проверяется отдельно.
var phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)

func (s *Service) validateInput(input RegistrationInput) error {
	if err := s.validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := verrs[0].Field()
			return domain.ValidationError{Field: field, Reason: fmt.Sprintf("failed %s validation", verrs[0].Tag())}
		}
		return domain.ValidationError{Field: "input", Reason: err.Error()}
	}
	if !phonePattern.MatchString(input.Phone) {
		return domain.ValidationError{Field: "Phone", Reason: "phone must be + followed by 10-15 digits"}
	}
	if input.Role != "" && input.Role != domain.RoleStudent && input.Role != domain.RoleSupplyOwner {
		return domain.ValidationError{Field: "role", Reason: "unknown role"}
	}
	return nil
}

func (s *Service) enqueueUserEvent(tx docstore.Tx, uid, eventType string, payload map[string]any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return docrepo.AppendTx(tx, domain.OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: "user",
		AggregateID:   uid,
		EventType:     eventType,
		Payload:       body,
	}, now)
}

func (s *Service) mapErr(err error) error {
	if errors.Is(err, docstore.ErrTxConflict) {
		if s.metrics != nil {
			s.metrics.RecordTxConflict()
		}
		return domain.ErrUnavailable
	}
	return err
}
