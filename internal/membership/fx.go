package membership

import (
	"github.com/openconreg/conreg/internal/membership/repository"
	"github.com/openconreg/conreg/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
