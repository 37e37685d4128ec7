package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/yeremiapane/restaurant-reservations/models"
	"github.com/yeremiapane/restaurant-reservations/utils"
	"gorm.io/gorm"
)

// BlacklistGate reports whether a contact may not book.
type BlacklistGate interface {
	IsBlacklisted(ctx context.Context, email, phone string) (bool, error)
}

// BlacklistCache memoises gate answers.
type BlacklistCache interface {
	Get(ctx context.Context, email, phone string) (blocked bool, found bool, err error)
	Set(ctx context.Context, email, phone string, blocked bool) error
	Invalidate(ctx context.Context) error
}

// BlacklistService stores blacklist entries and implements BlacklistGate.
type BlacklistService struct {
	db    *gorm.DB
	clock Clock
	cache BlacklistCache
}

func NewBlacklistService(db *gorm.DB, clock Clock, cache BlacklistCache) *BlacklistService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BlacklistService{db: db, clock: clock, cache: cache}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps digits only so "+62 812-000" and "62812000" match.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *BlacklistService) IsBlacklisted(ctx context.Context, email, phone string) (bool, error) {
	email, phone = NormalizeEmail(email), NormalizePhone(phone)
	if email == "" && phone == "" {
		return false, nil
	}

	if s.cache != nil {
		blocked, found, err := s.cache.Get(ctx, email, phone)
		if err != nil {
			utils.ErrorLogger.Warnf("blacklist cache read failed: %v", err)
		} else if found {
			return blocked, nil
		}
	}

	q := s.db.WithContext(ctx).Model(&models.BlacklistEntry{}).
		Where("active = ?", true).
		Where("expires_at IS NULL OR expires_at > ?", s.clock.Now())
	switch {
	case email != "" && phone != "":
		q = q.Where("email = ? OR phone = ?", email, phone)
	case email != "":
		q = q.Where("email = ?", email)
	default:
		q = q.Where("phone = ?", phone)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("query blacklist: %w", err)
	}
	blocked := count > 0

	if s.cache != nil {
		if err := s.cache.Set(ctx, email, phone, blocked); err != nil {
			utils.ErrorLogger.Warnf("blacklist cache write failed: %v", err)
		}
	}
	return blocked, nil
}

// Add stores a new active entry.
func (s *BlacklistService) Add(ctx context.Context, entry *models.BlacklistEntry) error {
	entry.Email = NormalizeEmail(entry.Email)
	entry.Phone = NormalizePhone(entry.Phone)
	if entry.Email == "" && entry.Phone == "" {
		return newError(KindValidation, "blacklist entry needs an email or a phone")
	}
	entry.Active = true
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create blacklist entry: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *BlacklistService) List(ctx context.Context, activeOnly bool) ([]models.BlacklistEntry, error) {
	var entries []models.BlacklistEntry
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	return entries, nil
}

// Deactivate lifts an entry without deleting its history.
func (s *BlacklistService) Deactivate(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.BlacklistEntry{}).
		Where("id = ?", id).
		Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate blacklist entry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return newError(KindNotFound, "blacklist entry %d not found", id)
	}
	s.invalidate(ctx)
	return nil
}

func (s *BlacklistService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		utils.ErrorLogger.Warnf("blacklist cache invalidate failed: %v", err)
	}
}

// RedisBlacklistCache keeps gate answers in redis. Keys carry a generation
// number so Invalidate only has to bump one counter.
type RedisBlacklistCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisBlacklistCache(client *redis.Client, ttl time.Duration) *RedisBlacklistCache {
	return &RedisBlacklistCache{Client: client, TTL: ttl}
}

const blacklistGenerationKey = "blacklist:gen"

func (c *RedisBlacklistCache) key(ctx context.Context, email, phone string) (string, error) {
	gen, err := c.Client.Get(ctx, blacklistGenerationKey).Result()
	if errors.Is(err, redis.Nil) {
		gen = "0"
	} else if err != nil {
		return "", err
	}
	return "blacklist:" + gen + ":" + email + "|" + phone, nil
}

func (c *RedisBlacklistCache) Get(ctx context.Context, email, phone string) (bool, bool, error) {
	key, err := c.key(ctx, email, phone)
	if err != nil {
		return false, false, err
	}
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (c *RedisBlacklistCache) Set(ctx context.Context, email, phone string, blocked bool) error {
	key, err := c.key(ctx, email, phone)
	if err != nil {
		return err
	}
	val := "0"
	if blocked {
		val = "1"
	}
	return c.Client.Set(ctx, key, val, c.TTL).Err()
}

func (c *RedisBlacklistCache) Invalidate(ctx context.Context) error {
	return c.Client.Incr(ctx, blacklistGenerationKey).Err()
}
