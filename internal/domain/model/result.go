package model

// State is the outcome severity of an update request.
type State string

const (
	StateSuccess State = "success"
	StateWarning State = "warning"
	StateInfo    State = "info"
	StateDanger  State = "danger"
)

// UpdateResult is returned by one update request.
type UpdateResult struct {
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	CountryCode  string    `json:"countryCode"`
	Score        int64     `json:"score"`
	LastUpdate   string    `json:"lastUpdate"`
	ScoreDetails Breakdown `json:"scoreDetails"`
	Message      string    `json:"message"`
	State        State     `json:"state"`
}
