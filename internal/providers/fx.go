package providers

import (
	"github.com/smallbiznis/kmanager/internal/providers/pdf"
	"go.uber.org/fx"
)

// Module bundles the outbound document renderers.
var Module = fx.Module("providers",
	pdf.Module,
)
