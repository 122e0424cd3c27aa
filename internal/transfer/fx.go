package transfer

import (
	"github.com/openconreg/conreg/internal/transfer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transfer.service",
	fx.Provide(service.New),
)
