package store

// RiskLevel classifies an ingredient in the curated library.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "Low"
	RiskLevelMedium RiskLevel = "Medium"
	RiskLevelHigh   RiskLevel = "High"
)

// Valid reports whether the risk level is one of the constrained values.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	}
	return false
}

// Ingredient is a row in the curated ingredient library.
type Ingredient struct {
	Name        string
	Description string
	RiskLevel   RiskLevel
	Embedding   []float32 // fixed-dimension vector, empty until embedded
	ID          int32
	CreatedTs   int64
}

// IngredientMatch is an ingredient returned by similarity search,
// with its cosine similarity to the query.
type IngredientMatch struct {
	Ingredient *Ingredient
	Similarity float64
}

// FindIngredient specifies the conditions for finding ingredients.
type FindIngredient struct {
	ID        *int32
	IDs       []int32
	Name      *string // exact match
	NameLike  *string // case-insensitive substring match
	RiskLevel *RiskLevel
	Limit     int
	Offset    int
}

// UpsertIngredient specifies the data for inserting or updating a library row.
// Rows conflict on name; the embedding is only replaced when non-empty.
type UpsertIngredient struct {
	Name        string
	Description string
	RiskLevel   RiskLevel
	Embedding   []float32
}

// IngredientSearch specifies a vector similarity search over the library.
type IngredientSearch struct {
	Vector    []float32
	Threshold float64 // minimum similarity, results below are dropped
	Limit     int
	RiskLevel *RiskLevel
}
