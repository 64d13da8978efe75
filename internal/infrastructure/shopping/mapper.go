package shopping

import (
	"strings"

	"github.com/pricelens/backend/internal/domain"
)

// searchResponse is the subset of the google_shopping payload the engine reads
type searchResponse struct {
	ShoppingResults       []shoppingResult `json:"shopping_results"`
	InlineShoppingResults []shoppingResult `json:"inline_shopping_results"`
	Error                 string           `json:"error"`
}

type shoppingResult struct {
	Position       int         `json:"position"`
	Title          string      `json:"title"`
	Link           string      `json:"link"`
	ProductLink    string      `json:"product_link"`
	ProductID      string      `json:"product_id"`
	Source         string      `json:"source"`
	Price          string      `json:"price"`
	ExtractedPrice float64     `json:"extracted_price"`
	Stores         []storeInfo `json:"stores"`
}

type storeInfo struct {
	Name           string  `json:"name"`
	Link           string  `json:"link"`
	Price          string  `json:"price"`
	ExtractedPrice float64 `json:"extracted_price"`
}

// productResponse is the subset of the google_product payload the engine reads
type productResponse struct {
	SellersResults struct {
		OnlineSellers []onlineSeller `json:"online_sellers"`
	} `json:"sellers_results"`
	Error string `json:"error"`
}

type onlineSeller struct {
	Name       string `json:"name"`
	Link       string `json:"link"`
	DirectLink string `json:"direct_link"`
	BasePrice  string `json:"base_price"`
	TotalPrice string `json:"total_price"`
}

// MapOffers converts provider results to domain offers; untitled results are dropped
func MapOffers(results []shoppingResult) []domain.Offer {
	offers := make([]domain.Offer, 0, len(results))
	for _, r := range results {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			continue
		}
		offer := domain.Offer{
			Title:       title,
			Price:       resolvePrice(r.ExtractedPrice, r.Price),
			PriceText:   r.Price,
			Source:      strings.TrimSpace(r.Source),
			Link:        r.Link,
			ProductLink: r.ProductLink,
			ProductID:   r.ProductID,
		}
		for _, s := range r.Stores {
			if s.Link == "" {
				continue
			}
			offer.Merchants = append(offer.Merchants, domain.Merchant{
				Name:  strings.TrimSpace(s.Name),
				Link:  s.Link,
				Price: resolvePrice(s.ExtractedPrice, s.Price),
			})
		}
		offers = append(offers, offer)
	}
	return offers
}

// MapSellers converts online sellers to merchants, preferring the seller's direct link
func MapSellers(sellers []onlineSeller) []domain.Merchant {
	merchants := make([]domain.Merchant, 0, len(sellers))
	for _, s := range sellers {
		link := s.DirectLink
		if link == "" {
			link = s.Link
		}
		if link == "" {
			continue
		}
		price := resolvePrice(0, s.BasePrice)
		if price == 0 {
			price = resolvePrice(0, s.TotalPrice)
		}
		merchants = append(merchants, domain.Merchant{
			Name:  strings.TrimSpace(s.Name),
			Link:  link,
			Price: price,
		})
	}
	return merchants
}

func resolvePrice(extracted float64, text string) float64 {
	if extracted > 0 {
		return domain.RoundCents(extracted)
	}
	if p, ok := domain.ParsePrice(text); ok {
		return p
	}
	return 0
}
