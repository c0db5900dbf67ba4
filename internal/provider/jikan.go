package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/anime-sync/internal/domain"
)

const JikanName = "jikan"

// JikanPolicy follows Jikan's documented 3 req/s limit: slow first retry,
// few attempts.
var JikanPolicy = RetryPolicy{
	MaxRetries:  3,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
	Exponential: true,
	Multiplier:  2,
}

// Jikan talks to the Jikan v4 REST API (an unofficial MyAnimeList mirror).
type Jikan struct {
	client *Client
}

func NewJikan(client *Client) *Jikan {
	return &Jikan{client: client}
}

func (j *Jikan) Name() string { return JikanName }

type jikanAnime struct {
	MalID    int64    `json:"mal_id"`
	Title    string   `json:"title"`
	Synopsis *string  `json:"synopsis"`
	Episodes *int     `json:"episodes"`
	Status   string   `json:"status"`
	Score    *float64 `json:"score"`
}

func (a jikanAnime) entity() Entity {
	e := Entity{
		ExternalID: strconv.FormatInt(a.MalID, 10),
		Title:      a.Title,
		Episodes:   a.Episodes,
		Status:     a.Status,
		Score:      a.Score,
	}
	if a.Synopsis != nil {
		e.Synopsis = *a.Synopsis
	}
	return e
}

func (j *Jikan) Search(ctx context.Context, query string, limit int) ([]Entity, error) {
	var resp struct {
		Data []jikanAnime `json:"data"`
	}
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := j.client.GetJSON(ctx, "/anime", q, &resp); err != nil {
		return nil, fmt.Errorf("jikan search: %w", err)
	}

	out := make([]Entity, 0, len(resp.Data))
	for _, a := range resp.Data {
		out = append(out, a.entity())
	}
	return out, nil
}

func (j *Jikan) GetByID(ctx context.Context, externalID string) (*Entity, error) {
	var resp struct {
		Data jikanAnime `json:"data"`
	}
	if err := j.client.GetJSON(ctx, "/anime/"+url.PathEscape(externalID), nil, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jikan get %s: %w", externalID, err)
	}
	e := resp.Data.entity()
	return &e, nil
}

func (j *Jikan) GetRelations(ctx context.Context, externalID string) ([]RelatedEntity, error) {
	var resp struct {
		Data []struct {
			Relation string `json:"relation"`
			Entry    []struct {
				MalID int64  `json:"mal_id"`
				Type  string `json:"type"`
				Name  string `json:"name"`
			} `json:"entry"`
		} `json:"data"`
	}
	path := "/anime/" + url.PathEscape(externalID) + "/relations"
	if err := j.client.GetJSON(ctx, path, nil, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("jikan relations %s: %w", externalID, err)
	}

	var out []RelatedEntity
	for _, group := range resp.Data {
		kind := jikanRelationKind(group.Relation)
		for _, entry := range group.Entry {
			// Relations also point at manga; only anime are tracked.
			if entry.Type != "anime" {
				continue
			}
			out = append(out, RelatedEntity{
				ExternalID: strconv.FormatInt(entry.MalID, 10),
				Title:      entry.Name,
				Kind:       kind,
			})
		}
	}
	return out, nil
}

func jikanRelationKind(s string) domain.RelationKind {
	kind := domain.RelationKind(strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"), " ", "_"))
	if !kind.Valid() {
		return domain.RelationOther
	}
	return kind
}
