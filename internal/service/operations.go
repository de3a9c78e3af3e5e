package service

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/graphql"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// Executor runs one operation and returns its response. transport.Router and
// transport.HTTPChannel both satisfy it.
type Executor interface {
	Execute(ctx context.Context, op *graphql.Operation) (*graphql.Response, error)
}

// operationRunner executes an operation, reconciles the cache with the
// response and decodes the root field.
type operationRunner struct {
	exec    Executor
	updater *cache.Updater
	logger  *zap.Logger
}

func newOperationRunner(exec Executor, updater *cache.Updater, logger *zap.Logger) operationRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return operationRunner{exec: exec, updater: updater, logger: logger}
}

// run reports whether the root field was present and non-null.
func (r operationRunner) run(ctx context.Context, op *graphql.Operation, out any) (bool, error) {
	resp, err := r.exec.Execute(ctx, op)
	if err != nil {
		return false, mapOperationError(err)
	}
	if r.updater != nil {
		// the updater logs its own failures; a stale cache never fails the call
		_ = r.updater.Apply(op, resp)
	}
	if out == nil {
		return true, nil
	}
	found, err := resp.Decode(op.Field, out)
	if err != nil {
		return false, apperrors.NewInternalError(err)
	}
	return found, nil
}

// mapOperationError turns server-reported GraphQL errors into domain errors.
// Errors already carrying a domain code pass through.
func mapOperationError(err error) error {
	var respErr *graphql.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	msg := respErr.Message()
	switch respErr.Code() {
	case graphql.CodeNotFound:
		return apperrors.NewDomainError(apperrors.CodeNotFound, msg, http.StatusNotFound, nil)
	case graphql.CodeForbidden:
		return apperrors.NewUnauthorized(msg)
	case graphql.CodeBadUserInput, apperrors.CodeValidationFailed:
		return apperrors.NewValidationError(msg, nil)
	case apperrors.CodeConflict, graphql.CodeAccountExists:
		return apperrors.NewConflict(msg, nil)
	}
	return err
}
