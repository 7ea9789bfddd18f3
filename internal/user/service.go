// Package user はプロフィールの参照と更新を提供する。
package user

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/moamoa/internal/model"
	"github.com/hitoshi/moamoa/internal/repository"
	"github.com/hitoshi/moamoa/internal/security"
	"github.com/hitoshi/moamoa/internal/validation"
)

// Service はプロフィールのサービス層。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer *security.ProfileSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer *security.ProfileSanitizer) *Service {
	return &Service{userRepo: userRepo, sanitizer: sanitizer}
}

// GetProfile は本人向けのプロフィールを関連リソース数付きで返す。
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.UserProfile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	counts, err := s.userRepo.CountRelations(ctx, userID)
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}

	return &model.UserProfile{User: user.WithoutPassword(), Count: *counts}, nil
}

// GetPublicProfile は友達に公開する範囲のプロフィールを返す。
func (s *Service) GetPublicProfile(ctx context.Context, userID int64) (*model.PublicProfile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return &model.PublicProfile{
		ID:       user.ID,
		Name:     user.Name,
		Photo:    user.Photo,
		Birthday: user.Birthday,
	}, nil
}

// UpdateProfile はプロフィールを部分更新する。入力は検証済みであること。
func (s *Service) UpdateProfile(ctx context.Context, userID int64, req model.UpdateProfileRequest) (*model.User, error) {
	var update model.ProfileUpdate

	if req.Name != nil {
		name := s.sanitizer.Name(*req.Name, "")
		if name == "" {
			return nil, model.NewBadRequestError("이름을 입력해주세요", nil)
		}
		update.Name = &name
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		update.Phone = &phone
	}
	if req.Birthday != nil {
		birthday, err := validation.ParseDate(*req.Birthday)
		if err != nil {
			return nil, model.NewBadRequestError("생일 형식이 올바르지 않습니다", nil)
		}
		update.Birthday = &birthday
	}
	if req.Photo != nil {
		photo := s.sanitizer.Photo(*req.Photo)
		if photo == nil {
			return nil, model.NewBadRequestError("프로필 이미지 URL이 올바르지 않습니다", nil)
		}
		update.Photo = photo
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, model.NewDatabaseError(err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("profile updated", slog.Int64("user_id", userID))
	return user.WithoutPassword(), nil
}
