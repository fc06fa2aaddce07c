package indicator

import (
	"strconv"
	"strings"
)

// ParseRequest parses a request spec of the form produced by Request.Name:
// "SMA_20", "EMA_12", "BOLLINGER_20", "RSI_14", "MACD_12_26_9", "VOLUME".
// Kind names are case-insensitive.
func ParseRequest(spec string) (Request, error) {
	parts := strings.Split(strings.TrimSpace(spec), "_")
	if len(parts) == 0 || parts[0] == "" {
		return Request{}, invalidParam("kind", "empty indicator spec")
	}

	kind := Kind(strings.ToUpper(parts[0]))
	args := make([]int, 0, len(parts)-1)
	for _, p := range parts[1:] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Request{}, invalidParam("period", "non-numeric parameter "+strconv.Quote(p))
		}
		args = append(args, n)
	}

	var req Request
	switch kind {
	case KindSMA, KindEMA, KindBollinger, KindRSI:
		if len(args) != 1 {
			return Request{}, invalidParam("period", string(kind)+" takes exactly one period")
		}
		req = Request{Kind: kind, Period: args[0]}
	case KindMACD:
		if len(args) != 3 {
			return Request{}, invalidParam("period", "MACD takes fast, slow, and signal periods")
		}
		req = Request{Kind: kind, FastPeriod: args[0], SlowPeriod: args[1], SignalPeriod: args[2]}
	case KindVolume:
		if len(args) != 0 {
			return Request{}, invalidParam("period", "VOLUME takes no parameters")
		}
		req = Request{Kind: kind}
	default:
		return Request{}, invalidParam("kind", "unknown indicator kind "+strconv.Quote(string(kind)))
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ParseRequests parses a comma-separated list of request specs.
func ParseRequests(list string) ([]Request, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var reqs []Request
	for _, spec := range strings.Split(list, ",") {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		req, err := ParseRequest(spec)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
