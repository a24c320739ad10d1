package camunda

import (
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"

	apperrors "erp-nlquery/internal/common/errors"
	"erp-nlquery/internal/common/validation"
)

// DecodeVariables checks the job variables against schema and decodes them
// into dst. Failures come back as INVALID_REQUEST so the error handler throws
// instead of retrying.
func DecodeVariables(job entities.Job, schema string, dst interface{}) error {
	payload := []byte(job.GetVariables())

	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("parse variables: %v", err))
	}

	result, err := validation.ValidateInput(raw, schema)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !result.Valid {
		return apperrors.NewInvalidRequestError(result.Error())
	}

	if err := json.Unmarshal(payload, dst); err != nil {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("decode variables: %v", err))
	}
	return nil
}
