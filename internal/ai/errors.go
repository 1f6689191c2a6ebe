package ai

import "errors"

var (
	// ErrAnalysisParse means the model replied but the reply did not match
	// the judgment schema.
	ErrAnalysisParse = errors.New("analysis response could not be parsed")
	// ErrAnalysisUnavailable means the model could not be reached or refused
	// the request.
	ErrAnalysisUnavailable = errors.New("analysis unavailable")

	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)
