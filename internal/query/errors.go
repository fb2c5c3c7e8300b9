package query

import (
	"errors"

	"github.com/ecommerce-chatbot/backend/internal/llm"
)

var (
	// ErrMalformedModelResponse means the model reply had no <SQL>...</SQL> block.
	ErrMalformedModelResponse = errors.New("model response has no <SQL></SQL> block")

	// ErrUnsafeQuery means the generated statement is not a SELECT.
	ErrUnsafeQuery = errors.New("generated query is not a SELECT statement")

	// ErrEmptyResult means the generated query matched no rows.
	ErrEmptyResult = errors.New("query returned no rows")

	ErrEmptyQuery = errors.New("query is empty")

	ErrUpstreamServiceFailure = llm.ErrUpstreamServiceFailure
)
