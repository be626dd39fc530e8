package database

import (
	"fmt"
	"net/url"

	"github.com/sashagrin/mediawatch/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config. The
// config is expected to have passed through the loader's defaults, which
// guarantee port and sslmode are set.
func BuildConnString(cfg config.DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		url.QueryEscape(cfg.Password), // passwords may carry URL metacharacters
		cfg.Host,
		cfg.Port,
		cfg.Name,
		cfg.SSLMode,
	)
}
