package domain

// UpstreamUser is the subset of the GitHub user object the proxy consumes.
// Nil pointers mean the upstream omitted the field or sent null.
type UpstreamUser struct {
	Login     string
	Name      *string
	AvatarURL *string
	Location  *string
	Email     *string
	URL       *string
	CreatedAt *string
}

// UpstreamRepo is a single entry of a user's repository listing.
type UpstreamRepo struct {
	Name string
	URL  string
}

// Profile is the aggregated, reshaped view of a user and their repositories.
// It is the unit stored in the profile cache and is never mutated once built.
type Profile struct {
	Username    string
	DisplayName *string
	Avatar      *string
	Location    *string
	Email       *string
	URL         *string
	CreatedAt   *string
	Repos       []Repo
}

// Repo is a (name, url) pair in a Profile.
type Repo struct {
	Name string
	URL  string
}
