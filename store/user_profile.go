package store

// AnonymousUserID marks scans performed without a profile.
// Anonymous scans are assessed with an empty sensitivity list.
const AnonymousUserID = "anonymous"

// UserProfile holds a user's recorded health sensitivities.
// Sensitivities are free-text tags ("PCOS", "Sensitive Skin", ...).
type UserProfile struct {
	UserID        string
	Sensitivities []string
	ID            int32
	CreatedTs     int64
	UpdatedTs     int64
}

// FindUserProfile specifies the conditions for finding user profiles.
type FindUserProfile struct {
	ID     *int32
	UserID *string
	Limit  int
}

// UpsertUserProfile specifies the data for creating or updating a profile.
// Rows conflict on user_id.
type UpsertUserProfile struct {
	UserID        string
	Sensitivities []string
}
