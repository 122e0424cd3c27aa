package user

import (
	"github.com/openconreg/conreg/internal/user/repository"
	"github.com/openconreg/conreg/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
