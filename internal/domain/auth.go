package domain

// AuthPayload is returned by login and register.
type AuthPayload struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user"`
}

// RefreshPayload is returned by the cookie-authenticated refresh endpoint.
type RefreshPayload struct {
	AccessToken string `json:"accessToken"`
}
