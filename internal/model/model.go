// Package model defines the domain types used across the application.
package model

import "time"

// Vehicle is one listing held in the snapshot cache. JSON field names are
// part of the mobile client contract and must not change.
type Vehicle struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Price        *int      `json:"price"`
	Year         *int      `json:"year"`
	Mileage      *int      `json:"mileage"`
	Location     string    `json:"location"`
	Postcode     string    `json:"postcode,omitempty"`
	FuelType     *string   `json:"fuelType"`
	ImageURL     *string   `json:"imageUrl"`
	WillhabenURL *string   `json:"willhabenUrl"`
	Phone        *string   `json:"phone"`
	SellerName   *string   `json:"sellerName"`
	IsPrivate    bool      `json:"isPrivate"`
	IsNew        bool      `json:"isNew"`
	FirstSeenAt  time.Time `json:"firstSeenAt"`
}

// Candidate is a parsed listing from one scrape cycle that has not yet been
// admitted to the cache.
type Candidate struct {
	ID           string
	Title        string
	Price        *int
	Year         *int
	Mileage      *int
	Location     string
	Postcode     string
	FuelType     *string
	ImageURL     *string
	WillhabenURL *string
	Phone        *string
	SellerName   *string
	IsPrivate    bool
}

// Vehicle converts a candidate into a cache record with its first-seen
// timestamp. isNew reflects whether the admitting cycle is the silent
// baseline seed or a real observation.
func (c Candidate) Vehicle(firstSeen time.Time, isNew bool) Vehicle {
	return Vehicle{
		ID:           c.ID,
		Title:        c.Title,
		Price:        c.Price,
		Year:         c.Year,
		Mileage:      c.Mileage,
		Location:     c.Location,
		Postcode:     c.Postcode,
		FuelType:     c.FuelType,
		ImageURL:     c.ImageURL,
		WillhabenURL: c.WillhabenURL,
		Phone:        c.Phone,
		SellerName:   c.SellerName,
		IsPrivate:    c.IsPrivate,
		IsNew:        isNew,
		FirstSeenAt:  firstSeen,
	}
}
