package trust

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/lexfirma/trustledger/internal/config"
	"github.com/lexfirma/trustledger/internal/trust/service"
	"github.com/lexfirma/trustledger/pkg/secret"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("trust.service",
	fx.Provide(
		NewSealer,
		service.NewService,
	),
)

// NewSealer builds the bank-account-number sealer from ACCOUNT_SECRET_KEY.
// Without a configured key a random one is generated; sealed values then do
// not survive a restart, which is acceptable only outside production.
func NewSealer(cfg config.Config, log *zap.Logger) (*secret.Sealer, error) {
	key := cfg.AccountSecretKey
	if key == "" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		key = base64.StdEncoding.EncodeToString(raw)
		log.Warn("ACCOUNT_SECRET_KEY not set, using ephemeral key")
	}
	return secret.NewSealer(key)
}
