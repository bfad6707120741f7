package store

// ProductType constrains the kind of personal care product.
type ProductType string

const (
	ProductTypeTampon ProductType = "tampon"
	ProductTypePad    ProductType = "pad"
	ProductTypeCup    ProductType = "cup"
	ProductTypeLiner  ProductType = "liner"
	ProductTypeWipe   ProductType = "wipe"
	ProductTypeWash   ProductType = "wash"
	ProductTypeOther  ProductType = "other"
)

// Valid reports whether the product type is one of the constrained values.
func (t ProductType) Valid() bool {
	switch t {
	case ProductTypeTampon, ProductTypePad, ProductTypeCup, ProductTypeLiner,
		ProductTypeWipe, ProductTypeWash, ProductTypeOther:
		return true
	}
	return false
}

// ProductStatus tracks the review lifecycle of a catalogued product.
type ProductStatus string

const (
	ProductStatusPending  ProductStatus = "pending"
	ProductStatusVerified ProductStatus = "verified"
	ProductStatusFlagged  ProductStatus = "flagged"
)

// Valid reports whether the status is one of the constrained values.
func (s ProductStatus) Valid() bool {
	switch s {
	case ProductStatusPending, ProductStatusVerified, ProductStatusFlagged:
		return true
	}
	return false
}

// Product is a catalogued product identified by barcode.
type Product struct {
	BrandName     string
	Barcode       string
	ProductType   ProductType
	Status        ProductStatus
	IngredientIDs []int32
	CoverageScore float64 // fraction of the label resolved to library rows
	ResearchCount int32   // PubMed studies referencing the product's ingredients
	ID            int32
	CreatedTs     int64
	UpdatedTs     int64
}

// FindProduct specifies the conditions for finding products.
type FindProduct struct {
	ID          *int32
	Barcode     *string
	ProductType *ProductType
	Status      *ProductStatus
	Limit       int
	Offset      int
}

// UpsertProduct specifies the data for inserting or updating a product.
// Rows conflict on barcode.
type UpsertProduct struct {
	BrandName     string
	Barcode       string
	ProductType   ProductType
	Status        ProductStatus
	IngredientIDs []int32
	CoverageScore float64
	ResearchCount int32
}

// UpdateProduct specifies a partial update of an existing product.
type UpdateProduct struct {
	ID            int32
	Status        *ProductStatus
	CoverageScore *float64
	ResearchCount *int32
}
