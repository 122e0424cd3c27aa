package reservation

import (
	"github.com/openconreg/conreg/internal/reservation/repository"
	"github.com/openconreg/conreg/internal/reservation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reservation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
