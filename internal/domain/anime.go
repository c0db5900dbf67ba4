package domain

import (
	"errors"
	"time"
)

var (
	ErrAnimeNotFound       = errors.New("anime not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrNoProviders         = errors.New("no provider available")
	ErrNoExternalID        = errors.New("anime has no id for provider")
	ErrExternalIDTaken     = errors.New("provider id already mapped to another anime")
)

// Anime is the merged view of one title as fetched from a provider.
type Anime struct {
	ID          int64
	Title       string
	Synopsis    string
	Episodes    *int
	Status      string
	Score       *float64
	ExternalIDs map[string]string // provider code -> provider's id
	RefreshedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RelationKind string

const (
	RelationSequel             RelationKind = "sequel"
	RelationPrequel            RelationKind = "prequel"
	RelationSideStory          RelationKind = "side_story"
	RelationParentStory        RelationKind = "parent_story"
	RelationSpinOff            RelationKind = "spin_off"
	RelationAdaptation         RelationKind = "adaptation"
	RelationSource             RelationKind = "source"
	RelationAlternativeVersion RelationKind = "alternative_version"
	RelationAlternativeSetting RelationKind = "alternative_setting"
	RelationSummary            RelationKind = "summary"
	RelationFullStory          RelationKind = "full_story"
	RelationCharacter          RelationKind = "character"
	RelationOther              RelationKind = "other"
)

var inverseRelation = map[RelationKind]RelationKind{
	RelationSequel:             RelationPrequel,
	RelationPrequel:            RelationSequel,
	RelationSideStory:          RelationParentStory,
	RelationParentStory:        RelationSideStory,
	RelationSpinOff:            RelationParentStory,
	RelationAdaptation:         RelationSource,
	RelationSource:             RelationAdaptation,
	RelationAlternativeVersion: RelationAlternativeVersion,
	RelationAlternativeSetting: RelationAlternativeSetting,
	RelationSummary:            RelationFullStory,
	RelationFullStory:          RelationSummary,
	RelationCharacter:          RelationCharacter,
	RelationOther:              RelationOther,
}

// Inverse returns the kind of the B->A edge for an A->B edge of kind k.
// Unknown kinds map to RelationOther.
func (k RelationKind) Inverse() RelationKind {
	if inv, ok := inverseRelation[k]; ok {
		return inv
	}
	return RelationOther
}

func (k RelationKind) Valid() bool {
	_, ok := inverseRelation[k]
	return ok
}

// Relation is one directed edge of the related-entity graph.
type Relation struct {
	AnimeID   int64
	RelatedID int64
	Kind      RelationKind
}

// WithInverse returns r followed by its mirrored edge.
func (r Relation) WithInverse() [2]Relation {
	return [2]Relation{
		r,
		{AnimeID: r.RelatedID, RelatedID: r.AnimeID, Kind: r.Kind.Inverse()},
	}
}
