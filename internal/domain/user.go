package domain

type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser"`
	Avatar      string `json:"avatar,omitempty"`
}

// Tokens is the pair issued by /token/ and /auth/google/.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
