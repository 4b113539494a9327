package customer

import (
	"github.com/smallbiznis/kmanager/internal/customer/domain"
	"github.com/smallbiznis/kmanager/internal/customer/service"
	"github.com/smallbiznis/kmanager/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.ProvideStore[domain.Customer]),
	fx.Provide(service.New),
)
