package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lotus-health/lotus/ai/cache"
	"github.com/lotus-health/lotus/internal/profile"
)

// Driver is the database access interface implemented per backend.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate ensures the schema exists: tables, CHECK constraints,
	// unique indexes, and the vector index on the ingredient library.
	Migrate(ctx context.Context) error

	UpsertIngredient(ctx context.Context, upsert *UpsertIngredient) (*Ingredient, error)
	ListIngredients(ctx context.Context, find *FindIngredient) ([]*Ingredient, error)
	CountIngredients(ctx context.Context, find *FindIngredient) (int64, error)
	SearchIngredients(ctx context.Context, search *IngredientSearch) ([]*IngredientMatch, error)
	ListIngredientsWithoutEmbedding(ctx context.Context, limit int) ([]*Ingredient, error)

	UpsertProduct(ctx context.Context, upsert *UpsertProduct) (*Product, error)
	UpdateProduct(ctx context.Context, update *UpdateProduct) (*Product, error)
	ListProducts(ctx context.Context, find *FindProduct) ([]*Product, error)

	UpsertUserProfile(ctx context.Context, upsert *UpsertUserProfile) (*UserProfile, error)
	ListUserProfiles(ctx context.Context, find *FindUserProfile) ([]*UserProfile, error)

	CreateScan(ctx context.Context, create *CreateScan) (*Scan, error)
	ListScans(ctx context.Context, find *FindScan) ([]*Scan, error)
	CountScans(ctx context.Context, find *FindScan) (int64, error)
	DeleteScan(ctx context.Context, delete *DeleteScan) error
}

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// User profiles are read on every scan; short TTL keeps sensitivity
	// edits visible without a round-trip per scan.
	userProfileCache *cache.LRUCache[string, *UserProfile]
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:           driver,
		profile:          profile,
		userProfileCache: cache.NewLRUCache[string, *UserProfile](1000, 10*time.Minute),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) UpsertIngredient(ctx context.Context, upsert *UpsertIngredient) (*Ingredient, error) {
	return s.driver.UpsertIngredient(ctx, upsert)
}

func (s *Store) ListIngredients(ctx context.Context, find *FindIngredient) ([]*Ingredient, error) {
	return s.driver.ListIngredients(ctx, find)
}

func (s *Store) CountIngredients(ctx context.Context, find *FindIngredient) (int64, error) {
	return s.driver.CountIngredients(ctx, find)
}

// GetIngredient returns the single ingredient matching find, or nil.
func (s *Store) GetIngredient(ctx context.Context, find *FindIngredient) (*Ingredient, error) {
	list, err := s.driver.ListIngredients(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) SearchIngredients(ctx context.Context, search *IngredientSearch) ([]*IngredientMatch, error) {
	return s.driver.SearchIngredients(ctx, search)
}

func (s *Store) ListIngredientsWithoutEmbedding(ctx context.Context, limit int) ([]*Ingredient, error) {
	return s.driver.ListIngredientsWithoutEmbedding(ctx, limit)
}

func (s *Store) UpsertProduct(ctx context.Context, upsert *UpsertProduct) (*Product, error) {
	return s.driver.UpsertProduct(ctx, upsert)
}

func (s *Store) UpdateProduct(ctx context.Context, update *UpdateProduct) (*Product, error) {
	return s.driver.UpdateProduct(ctx, update)
}

func (s *Store) ListProducts(ctx context.Context, find *FindProduct) ([]*Product, error) {
	return s.driver.ListProducts(ctx, find)
}

// GetProductByBarcode returns the product with the given barcode, or nil.
func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*Product, error) {
	list, err := s.driver.ListProducts(ctx, &FindProduct{Barcode: &barcode, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpsertUserProfile(ctx context.Context, upsert *UpsertUserProfile) (*UserProfile, error) {
	userProfile, err := s.driver.UpsertUserProfile(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.userProfileCache.SetWithDefaultTTL(userProfile.UserID, userProfile)
	return userProfile, nil
}

// GetUserProfile returns the profile for userID, or nil when none exists.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	if cached, ok := s.userProfileCache.Get(userID); ok {
		return cached, nil
	}

	list, err := s.driver.ListUserProfiles(ctx, &FindUserProfile{UserID: &userID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	s.userProfileCache.SetWithDefaultTTL(userID, list[0])
	return list[0], nil
}

func (s *Store) CreateScan(ctx context.Context, create *CreateScan) (*Scan, error) {
	return s.driver.CreateScan(ctx, create)
}

func (s *Store) ListScans(ctx context.Context, find *FindScan) ([]*Scan, error) {
	return s.driver.ListScans(ctx, find)
}

func (s *Store) CountScans(ctx context.Context, find *FindScan) (int64, error) {
	return s.driver.CountScans(ctx, find)
}

func (s *Store) DeleteScan(ctx context.Context, delete *DeleteScan) error {
	return s.driver.DeleteScan(ctx, delete)
}
