package model

type Location struct {
	ID       string
	Name     string
	Address  string
	Keywords []string
}

type Staff struct {
	ID         string
	LocationID string
	Name       string
	IsActive   bool
}

type Service struct {
	ID              string
	LocationID      string
	Name            string
	Price           string
	DurationMinutes int
	IsDefault       bool
}
