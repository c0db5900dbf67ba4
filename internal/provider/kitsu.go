package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const KitsuName = "kitsu"

// KitsuPolicy retries quickly and more often; Kitsu has no published
// per-second limit but sheds load with 5xx under pressure.
var KitsuPolicy = RetryPolicy{
	MaxRetries:  5,
	BaseDelay:   250 * time.Millisecond,
	MaxDelay:    10 * time.Second,
	Exponential: true,
	Multiplier:  2,
}

// KitsuAccept is the JSON:API media type Kitsu expects.
const KitsuAccept = "application/vnd.api+json"

// Kitsu talks to the Kitsu JSON:API edge endpoints. It does not expose
// relations in a form worth following, so it only implements Provider.
type Kitsu struct {
	client *Client
}

func NewKitsu(client *Client) *Kitsu {
	return &Kitsu{client: client}
}

func (k *Kitsu) Name() string { return KitsuName }

type kitsuAnime struct {
	ID         string `json:"id"`
	Attributes struct {
		CanonicalTitle string  `json:"canonicalTitle"`
		Synopsis       string  `json:"synopsis"`
		EpisodeCount   *int    `json:"episodeCount"`
		Status         string  `json:"status"`
		AverageRating  *string `json:"averageRating"` // "82.31", 0-100 scale
	} `json:"attributes"`
}

func (a kitsuAnime) entity() Entity {
	e := Entity{
		ExternalID: a.ID,
		Title:      a.Attributes.CanonicalTitle,
		Synopsis:   a.Attributes.Synopsis,
		Episodes:   a.Attributes.EpisodeCount,
		Status:     a.Attributes.Status,
	}
	if a.Attributes.AverageRating != nil {
		if v, err := strconv.ParseFloat(*a.Attributes.AverageRating, 64); err == nil {
			score := v / 10
			e.Score = &score
		}
	}
	return e
}

func (k *Kitsu) Search(ctx context.Context, query string, limit int) ([]Entity, error) {
	var resp struct {
		Data []kitsuAnime `json:"data"`
	}
	q := url.Values{"filter[text]": {query}}
	if limit > 0 {
		q.Set("page[limit]", strconv.Itoa(limit))
	}
	if err := k.client.GetJSON(ctx, "/anime", q, &resp); err != nil {
		return nil, fmt.Errorf("kitsu search: %w", err)
	}

	out := make([]Entity, 0, len(resp.Data))
	for _, a := range resp.Data {
		out = append(out, a.entity())
	}
	return out, nil
}

func (k *Kitsu) GetByID(ctx context.Context, externalID string) (*Entity, error) {
	var resp struct {
		Data kitsuAnime `json:"data"`
	}
	if err := k.client.GetJSON(ctx, "/anime/"+url.PathEscape(externalID), nil, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("kitsu get %s: %w", externalID, err)
	}
	e := resp.Data.entity()
	return &e, nil
}
