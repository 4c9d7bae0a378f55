package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyed is satisfied by every record model that carries a string uuid
// primary key named "id".
type keyed interface {
	primaryKey() string
	setPrimaryKey(id string)
}

// uuidHandlers builds the repository ModelHandlers shared by all record
// models, routing identity access through the keyed methods.
func uuidHandlers[T any, PT interface {
	*T
	keyed
}]() repository.ModelHandlers[PT] {
	return repository.ModelHandlers[PT]{
		NewRecord: func() PT {
			return PT(new(T))
		},
		GetID: func(record PT) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.primaryKey())
		},
		SetID: func(record PT, id uuid.UUID) {
			if record != nil {
				record.setPrimaryKey(id.String())
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record PT) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.primaryKey())
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
