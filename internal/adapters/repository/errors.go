package repository

import (
	"errors"
	"fmt"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// Sentinel kinds for repository errors. Missing records are reported with
// model.ErrNotFound so callers need only one sentinel.
var (
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")
)

func notFound(entity, id string) error {
	return model.NotFound("repository.get_"+entity, entity, id)
}

func alreadyExists(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrAlreadyExists)
}

// mixedDiscipline rejects a card whose discipline differs from the cards
// already held by its category.
func mixedDiscipline(category, card model.Discipline) error {
	return model.Invalid("repository.create_scorecard", "discipline", "single", string(category), string(card))
}
