package paymentterm

import (
	"github.com/smallbiznis/kmanager/internal/paymentterm/domain"
	"github.com/smallbiznis/kmanager/internal/paymentterm/service"
	"github.com/smallbiznis/kmanager/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentterm.service",
	fx.Provide(repository.ProvideStore[domain.PaymentTerm]),
	fx.Provide(service.New),
)
