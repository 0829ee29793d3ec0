package executor

import "github.com/tos-network/tos-core/errors"

var errUnsupportedExecutor = errors.New(errors.ERR_UNSUPPORTED_CONTRACT_FORMAT, "no contract executor bound supports this bytecode format")
