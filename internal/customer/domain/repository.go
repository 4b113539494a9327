package domain

import "github.com/smallbiznis/kmanager/pkg/repository"

type Repository = repository.Repository[Customer]
