package id

import (
	"github.com/google/uuid"

	"github.com/yuvalro/ivan/domain"
)

// New returns a domain.IDGenerator backed by random UUIDs.
func New() domain.IDGenerator { return uuidGenerator{} }

type uuidGenerator struct{}

func (g uuidGenerator) NewID() string {
	return uuid.NewString()
}
