package charge

import (
	"fmt"

	"github.com/openconreg/conreg/internal/charge/domain"
	"github.com/openconreg/conreg/internal/charge/processor/fake"
	"github.com/openconreg/conreg/internal/charge/repository"
	"github.com/openconreg/conreg/internal/charge/service"
	"github.com/openconreg/conreg/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("charge.service",
	fx.Provide(repository.Provide),
	fx.Provide(newProcessor),
	fx.Provide(service.New),
)

// newProcessor selects the processor by configured name. The fake is
// the only implementation and never reaches a gateway; an unknown name
// fails startup rather than silently settling charges through it.
func newProcessor(cfg config.Config, log *zap.Logger) (domain.Processor, error) {
	switch cfg.PaymentProvider {
	case "", "fake":
		log.Named("charge.processor").Warn("payments settle through the fake processor")
		return fake.New(), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}
