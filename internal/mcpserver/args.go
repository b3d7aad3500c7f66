package mcpserver

import (
	"math"
	"strings"

	"github.com/FranksOps/llmsearch/internal/pipeline"
)

// searchArgs decodes llm_search tool arguments. Type mismatches are reported
// as *pipeline.ValidationError so they surface as tool errors.
func searchArgs(params map[string]any) (pipeline.SearchRequest, error) {
	var req pipeline.SearchRequest
	var err error

	if req.Query, err = stringArg(params, "query", true); err != nil {
		return req, err
	}
	if req.Location, err = stringArg(params, "location", false); err != nil {
		return req, err
	}
	if req.Start, err = intArg(params, "start", 0); err != nil {
		return req, err
	}
	if req.Crawl, err = boolArg(params, "crawl", false); err != nil {
		return req, err
	}
	return req, nil
}

func stringArg(params map[string]any, key string, required bool) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		if required {
			return "", &pipeline.ValidationError{Field: key, Reason: "is required"}
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &pipeline.ValidationError{Field: key, Reason: "must be a string"}
	}
	return s, nil
}

func intArg(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, &pipeline.ValidationError{Field: key, Reason: "must be an integer"}
		}
		if n >= math.MaxInt || n < math.MinInt {
			return 0, &pipeline.ValidationError{Field: key, Reason: "is out of range"}
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, &pipeline.ValidationError{Field: key, Reason: "must be an integer"}
	}
}

func boolArg(params map[string]any, key string, def bool) (bool, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		// Some clients send booleans as strings.
		switch strings.ToLower(b) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, &pipeline.ValidationError{Field: key, Reason: "must be a boolean"}
}
