package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedRecord is a bun model with a text primary key.
type keyedRecord[R any] interface {
	*R
	key() string
	assignKey(id string)
}

func (r *refundPolicyRecord) key() string         { return strings.TrimSpace(r.ID) }
func (r *refundPolicyRecord) assignKey(id string) { r.ID = id }

func (r *catalogServiceRecord) key() string         { return strings.TrimSpace(r.ID) }
func (r *catalogServiceRecord) assignKey(id string) { r.ID = id }

// keyedHandlers wires a keyed record into go-repository-bun. Ids chosen by
// the caller, such as "svc_cut", are kept; only empty ids get a UUID.
func keyedHandlers[R any, P keyedRecord[R]]() repository.ModelHandlers[P] {
	return repository.ModelHandlers[P]{
		NewRecord: func() P {
			return P(new(R))
		},
		GetID: func(record P) uuid.UUID {
			if (*R)(record) == nil {
				return uuid.Nil
			}
			return parseUUID(record.key())
		},
		SetID: func(record P, id uuid.UUID) {
			if (*R)(record) == nil || record.key() != "" {
				return
			}
			record.assignKey(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record P) string {
			if (*R)(record) == nil {
				return ""
			}
			return record.key()
		},
	}
}

func refundPolicyHandlers() repository.ModelHandlers[*refundPolicyRecord] {
	return keyedHandlers[refundPolicyRecord]()
}

func catalogServiceHandlers() repository.ModelHandlers[*catalogServiceRecord] {
	return keyedHandlers[catalogServiceRecord]()
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
