package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/pkg/db"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	users repository.Repository[domain.User]
	genID *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewService(
	gdb *gorm.DB,
	users repository.Repository[domain.User],
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) domain.Service {
	return &service{
		db:    gdb,
		users: users,
		genID: genID,
		clock: clk,
		log:   log.Named("directory.service"),
	}
}

func (s *service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	user := domain.User{
		ID:          s.genID.Generate(),
		Email:       email,
		FullName:    strings.TrimSpace(req.FullName),
		Phone:       strings.TrimSpace(req.Phone),
		SiteRoles:   datatypes.NewJSONType(req.SiteRoles),
		IsSuperuser: req.IsSuperuser,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.users.Create(ctx, &user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, err
	}
	return &user, nil
}

func (s *service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.users.FindOne(ctx, &domain.User{ID: id})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *service) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.FindOne(ctx, &domain.User{Email: strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *service) Assign(ctx context.Context, req domain.AssignRequest) (*domain.Membership, error) {
	if !domain.KnownMembershipRole(req.Role) {
		return nil, domain.ErrInvalidRole
	}
	if _, err := s.GetUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	since := req.Since
	if since.IsZero() {
		since = s.clock.Now()
	}

	membership := domain.Membership{
		ID:         s.genID.Generate(),
		UserID:     req.UserID,
		BuildingID: req.BuildingID,
		UnitID:     req.UnitID,
		Role:       req.Role,
		Since:      since,
		CreatedAt:  s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Close memberships of the same user in the same unit still open
		// at the new start, so intervals never overlap.
		if err := tx.Model(&domain.Membership{}).
			Where("user_id = ? AND unit_id = ?", req.UserID, req.UnitID).
			Where("until IS NULL OR until > ?", since).
			Update("until", since).Error; err != nil {
			return err
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("membership assigned",
		zap.String("user_id", req.UserID.String()),
		zap.String("unit_id", req.UnitID.String()),
		zap.String("role", string(req.Role)),
	)
	return &membership, nil
}

func (s *service) GetMembership(ctx context.Context, id snowflake.ID) (*domain.Membership, error) {
	var membership domain.Membership
	if err := s.db.WithContext(ctx).First(&membership, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, err
	}
	return &membership, nil
}

func (s *service) End(ctx context.Context, membershipID snowflake.ID, at time.Time) error {
	if at.IsZero() {
		at = s.clock.Now()
	}

	var membership domain.Membership
	err := s.db.WithContext(ctx).First(&membership, "id = ?", membershipID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ErrMembershipNotFound
		}
		return err
	}
	if membership.Until != nil {
		return domain.ErrMembershipClosed
	}

	return s.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("id = ?", membershipID).
		Update("until", at).Error
}

func (s *service) ActiveForUser(ctx context.Context, userID snowflake.ID, at time.Time) ([]domain.Membership, error) {
	return s.activeWhere(ctx, at, "user_id = ?", userID)
}

func (s *service) ActiveForUnit(ctx context.Context, unitID snowflake.ID, at time.Time) ([]domain.Membership, error) {
	return s.activeWhere(ctx, at, "unit_id = ?", unitID)
}

func (s *service) ActiveForBuilding(ctx context.Context, buildingID snowflake.ID, at time.Time) ([]domain.Membership, error) {
	return s.activeWhere(ctx, at, "building_id = ?", buildingID)
}

func (s *service) activeWhere(ctx context.Context, at time.Time, cond string, arg any) ([]domain.Membership, error) {
	if at.IsZero() {
		at = s.clock.Now()
	}
	var rows []domain.Membership
	err := s.db.WithContext(ctx).
		Where(cond, arg).
		Where("since <= ?", at).
		Where("until IS NULL OR until > ?", at).
		Order("since ASC").
		Find(&rows).Error
	return rows, err
}
