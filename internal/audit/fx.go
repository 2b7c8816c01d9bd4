package audit

import (
	"github.com/lexfirma/trustledger/internal/audit/repository"
	"github.com/lexfirma/trustledger/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
