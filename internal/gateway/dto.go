package gateway

import (
	"tradedeck/internal/indicator"
	"tradedeck/internal/model"
)

// indicatorDTO is the wire shape of one indicator output. Warm-up values
// that are undefined in the engine become JSON null here.
type indicatorDTO struct {
	Kind  string                `json:"kind"`
	Name  string                `json:"name"`
	Lines map[string][]*float64 `json:"lines"`
}

func toIndicatorDTO(out indicator.Output) indicatorDTO {
	dto := indicatorDTO{
		Kind:  string(out.Kind),
		Name:  out.Name,
		Lines: make(map[string][]*float64, len(out.Lines)),
	}
	for name, line := range out.Lines {
		vals := make([]*float64, len(line))
		for i, v := range line {
			if indicator.IsUndefined(v) {
				continue
			}
			v := v
			vals[i] = &v
		}
		dto.Lines[name] = vals
	}
	return dto
}

// marketDataResponse carries an OHLCV series plus index-aligned indicator
// outputs.
type marketDataResponse struct {
	Product     string         `json:"product"`
	Granularity string         `json:"granularity"`
	Bars        []model.Bar    `json:"bars"`
	Indicators  []indicatorDTO `json:"indicators"`
}

type configureRequest struct {
	APIKey       string `json:"api_key"`
	APISecret    string `json:"api_secret"`
	OpenAIAPIKey string `json:"openai_api_key"`
	TOTPSecret   string `json:"totp_secret,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"` // set for invalid indicator parameters
}

type statusResponse struct {
	Status string `json:"status"`
}
