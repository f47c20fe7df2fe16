package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repositories struct {
	OrganizationRepo OrganizationRepository
}

func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		OrganizationRepo: NewOrganizationRepository(pool),
	}
}
