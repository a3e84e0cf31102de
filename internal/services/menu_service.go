package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cardapio/internal/metrics"
	"cardapio/internal/models"
	"cardapio/internal/repositories"
	"cardapio/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var imageExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "webp": true,
}

// ImageUpload is a picture sent with a menu item, base64 encoded.
type ImageUpload struct {
	Base64   string
	FileName string
}

// MenuService handles business logic related to menu items.
type MenuService struct {
	repo     repositories.MenuRepository
	images   repositories.ImageStore
	cache    repositories.MenuCache
	validate *validator.Validate
	log      *logrus.Entry
	now      func() time.Time
	sfg      singleflight.Group
}

// NewMenuService creates a new MenuService. cache may be nil.
func NewMenuService(repo repositories.MenuRepository, images repositories.ImageStore, cache repositories.MenuCache, log *logrus.Entry) *MenuService {
	if cache == nil {
		cache = repositories.NopMenuCache{}
	}
	return &MenuService{
		repo:     repo,
		images:   images,
		cache:    cache,
		validate: validation.New(),
		log:      log,
		now:      time.Now,
	}
}

// ListMenuItems returns the whole menu. Concurrent cache misses share one
// backend read.
func (s *MenuService) ListMenuItems(ctx context.Context) ([]models.MenuItem, error) {
	v, err, _ := s.sfg.Do("menu", func() (interface{}, error) {
		items, err := s.cache.Get(ctx)
		if err == nil {
			metrics.RecordMenuCache("hit")
			return items, nil
		}
		if errors.Is(err, repositories.ErrCacheMiss) {
			metrics.RecordMenuCache("miss")
		} else {
			metrics.RecordMenuCache("error")
			s.log.WithError(err).Warn("menu cache get failed")
		}

		items, err = s.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, items); err != nil {
			s.log.WithError(err).Warn("menu cache set failed")
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.MenuItem), nil
}

// GetMenuItem retrieves a single menu item.
func (s *MenuService) GetMenuItem(ctx context.Context, id int64) (*models.MenuItem, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateMenuItem validates fields, uploads the optional image and inserts
// the item. Nothing is written when the upload fails.
func (s *MenuService) CreateMenuItem(ctx context.Context, fields models.MenuItemFields, image *ImageUpload) (*models.MenuItem, error) {
	if err := s.validate.Struct(fields); err != nil {
		return nil, &ValidationError{Fields: validation.Messages(err)}
	}

	item := &models.MenuItem{}
	fields.Apply(item)

	if image != nil {
		url, err := s.upload(ctx, image)
		if err != nil {
			return nil, err
		}
		item.ImageURL = url
	}

	if err := s.repo.Create(ctx, item); err != nil {
		s.log.WithError(err).WithField("name", item.Name).Error("menu item insert failed")
		return nil, &RemoteWriteError{Kind: KindMenuSave, Err: err}
	}

	s.invalidate(ctx)
	return item, nil
}

// UpdateMenuItem replaces the editable fields of item id. Without a new
// image the stored image_url is kept.
func (s *MenuService) UpdateMenuItem(ctx context.Context, id int64, fields models.MenuItemFields, image *ImageUpload) (*models.MenuItem, error) {
	if err := s.validate.Struct(fields); err != nil {
		return nil, &ValidationError{Fields: validation.Messages(err)}
	}

	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if image != nil {
		url, err := s.upload(ctx, image)
		if err != nil {
			return nil, err
		}
		item.ImageURL = url
	}
	fields.Apply(item)

	if err := s.repo.Update(ctx, item); err != nil {
		s.log.WithError(err).WithField("menu_item_id", id).Error("menu item update failed")
		return nil, &RemoteWriteError{Kind: KindMenuSave, Err: err}
	}

	s.invalidate(ctx)
	return item, nil
}

func (s *MenuService) upload(ctx context.Context, image *ImageUpload) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(image.FileName), "."))
	if !imageExtensions[ext] {
		return "", &ValidationError{Fields: map[string]string{"image": fmt.Sprintf("unsupported image type %q", ext)}}
	}

	data, err := base64.StdEncoding.DecodeString(image.Base64)
	if err != nil || len(data) == 0 {
		return "", &ValidationError{Fields: map[string]string{"image": "image must be non-empty base64"}}
	}

	objectPath := fmt.Sprintf("public/%d.%s", s.now().UnixMilli(), ext)
	url, err := s.images.Upload(ctx, objectPath, data, "image/"+ext)
	if err != nil {
		s.log.WithError(err).WithField("path", objectPath).Error("image upload failed")
		return "", &UploadError{Path: objectPath, Err: err}
	}
	return url, nil
}

func (s *MenuService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("menu cache invalidate failed")
	}
}
