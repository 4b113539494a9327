package organization

import (
	"github.com/smallbiznis/kmanager/internal/organization/domain"
	"github.com/smallbiznis/kmanager/internal/organization/service"
	"github.com/smallbiznis/kmanager/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.ProvideStore[domain.Company]),
	fx.Provide(service.NewService),
)
