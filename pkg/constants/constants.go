package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	TxKey        ContextKey = "tx"
	PoolKey      ContextKey = "pool"
	LoggerKey    ContextKey = "logger"
	ParamsKey    ContextKey = "params"
	ActorKey     ContextKey = "actor"
	RequestStart ContextKey = "requestStart"
)

// Validate is the shared validator instance used by DTOs and mapping payloads.
var Validate = validator.New(validator.WithRequiredStructEnabled())
