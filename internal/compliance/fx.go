package compliance

import (
	"github.com/lexfirma/trustledger/internal/compliance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("compliance.service",
	fx.Provide(service.NewService),
)
