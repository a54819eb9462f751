package model

type Tribe struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Owner       string         `json:"owner"`
	Admins      []string       `json:"admins"`
	Metadata    map[string]any `json:"metadata"`
	MemberCount int            `json:"member_count"`
	JoinPolicy  string         `json:"join_policy"`
	EntryFee    string         `json:"entry_fee"`
	Gates       []Gate         `json:"gates"`
}

type Gate struct {
	Contract   string `json:"contract"`
	TokenID    string `json:"token_id"`
	MinBalance int64  `json:"min_balance"`
}

type Profile struct {
	Address  string         `json:"address"`
	TokenID  string         `json:"token_id"`
	Username string         `json:"username"`
	Metadata map[string]any `json:"metadata"`
}

type CreateTribeRequest struct {
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata"`
	JoinPolicy string         `json:"join_policy"`
	EntryFee   string         `json:"entry_fee"`
	Gates      []Gate         `json:"gates"`
}
