package detail

import (
	"github.com/openconreg/conreg/internal/detail/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("detail",
	fx.Provide(repository.Provide),
)
