package product

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Record is one product of a catalog dump, as read by the seed and bulk
// import tools.
type Record struct {
	Input
	Rating     string `json:"rating"`
	NumReviews int    `json:"numReviews"`
}

// Product validates r and builds a new product from it.
func (r Record) Product(createdAt time.Time) (*Product, error) {
	p, err := FromInput(r.Input, createdAt)
	if err != nil {
		return nil, err
	}
	if r.Rating != "" {
		rating, err := decimal.NewFromString(r.Rating)
		if err != nil {
			return nil, errors.Wrapf(err, "parse rating of %s", r.Slug)
		}
		p.Rating = rating
	}
	p.NumReviews = r.NumReviews
	return p, nil
}
