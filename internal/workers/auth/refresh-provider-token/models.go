package refreshprovidertoken

type Input struct {
	UserID   string `json:"userId"`
	Provider string `json:"provider,omitempty"`
}

type Output struct {
	Refreshed bool   `json:"refreshed"`
	Provider  string `json:"provider"`
	ExpiresAt int64  `json:"expiresAt"`
}
