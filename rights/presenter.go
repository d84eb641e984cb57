/*
presenter.go - Display units for right quantities

PURPOSE:
  Implements beneficiary.UnitPresenter. A raw quantity such as 2.5 on a
  right counted in days is shown as "2.5 days"; 1 hour as "1 hour".

CACHING:
  Balances are recomputed on every request and most of them fall on a
  handful of values (0, 0.5, 1, 25...). Display values are kept in an
  LRU keyed by (unit, value) shared by every right.

EXAMPLE:
  p, _ := rights.NewPresenter(1024)
  p.For(generic.UnitDays).DisplayUnit(decimal.NewFromFloat(2.5))
  // {2.5, days, "2.5 days"}
*/
package rights

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"github.com/warp/renewal-engine/beneficiary"
	"github.com/warp/renewal-engine/generic"
	"github.com/warp/renewal-engine/metrics"
)

// DisplayPlaces is the precision quantities are shown with.
const DisplayPlaces = 2

type displayKey struct {
	unit  generic.Unit
	value string
}

// Presenter formats right quantities.
type Presenter struct {
	cache *lru.Cache[displayKey, beneficiary.DisplayValue]
}

func NewPresenter(cacheSize int) (*Presenter, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[displayKey, beneficiary.DisplayValue](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create display cache: %w", err)
	}
	return &Presenter{cache: cache}, nil
}

// For returns the presenter of rights counted in unit.
func (p *Presenter) For(unit generic.Unit) beneficiary.UnitPresenter {
	return beneficiary.PresenterFunc(func(value decimal.Decimal) beneficiary.DisplayValue {
		return p.Display(unit, value)
	})
}

func (p *Presenter) Display(unit generic.Unit, value decimal.Decimal) beneficiary.DisplayValue {
	key := displayKey{unit: unit, value: value.String()}
	if dv, ok := p.cache.Get(key); ok {
		metrics.DisplayCacheHits.Inc()
		return dv
	}
	metrics.DisplayCacheMisses.Inc()

	rounded := value.Round(DisplayPlaces)
	dv := beneficiary.DisplayValue{
		Value: rounded,
		Unit:  unit,
		Text:  FormatQuantity(unit, rounded),
	}
	p.cache.Add(key, dv)
	return dv
}

// Len is the number of cached display values.
func (p *Presenter) Len() int {
	return p.cache.Len()
}

// FormatQuantity renders a value with its unit, singular for exactly one.
func FormatQuantity(unit generic.Unit, value decimal.Decimal) string {
	one := value.Abs().Equal(decimal.NewFromInt(1))
	switch unit {
	case generic.UnitHours:
		if one {
			return value.String() + " hour"
		}
		return value.String() + " hours"
	case generic.UnitDays:
		if one {
			return value.String() + " day"
		}
		return value.String() + " days"
	default:
		return value.String()
	}
}
