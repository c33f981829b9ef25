package models

// Lead is the contact identity read from the lead directory.
type Lead struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Interest string `json:"interest,omitempty"`
	Location string `json:"location,omitempty"`
}
