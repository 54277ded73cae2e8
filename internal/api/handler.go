package api

import (
	"log/slog"

	"github.com/shaiso/jobpool/internal/submission"
)

// Handler is the API's dependency bag.
type Handler struct {
	client *submission.Client
	logger *slog.Logger
}

// Config configures a Handler.
type Config struct {
	Client *submission.Client
	Logger *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: cfg.Client, logger: logger}
}
