package model

type RevenueEntry struct {
	ID       int64    `json:"id"`
	Source   string   `json:"source"`
	Amount   int      `json:"amount"`
	Date     string   `json:"date"`
	Type     string   `json:"type"`
	Clients  []string `json:"clients"`
	Comments string   `json:"comments"`
}
