package source

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// DefaultSentinel is the payload the ECG front end sends while an electrode
// is detached.
const DefaultSentinel = "Leads Off"

// ErrDecode reports a payload that is neither the sentinel nor a number.
var ErrDecode = errors.New("error decoding payload")

// Reading is one decoded payload.
type Reading struct {
	LeadsOff bool
	Code     float64 // raw ADC code
	Volts    float64 // Code / FullScale * Reference
}

// Decoder turns raw payloads into voltages using the linear transform
// volts = code / FullScale * Reference.
type Decoder struct {
	Sentinel  string
	FullScale float64
	Reference float64
}

// NewDecoder returns a Decoder with the given ADC full scale and reference
// voltage and the default sentinel.
func NewDecoder(fullScale, reference float64) Decoder {
	return Decoder{Sentinel: DefaultSentinel, FullScale: fullScale, Reference: reference}
}

// Decode classifies a payload. Surrounding whitespace is ignored.
func (d Decoder) Decode(payload []byte) (Reading, error) {
	p := bytes.TrimSpace(payload)
	if d.Sentinel != "" && string(p) == d.Sentinel {
		return Reading{LeadsOff: true}, nil
	}
	code, err := strconv.ParseFloat(string(p), 64)
	if err != nil || math.IsNaN(code) || math.IsInf(code, 0) {
		return Reading{}, fmt.Errorf("%w: %q", ErrDecode, truncate(p, 32))
	}
	return Reading{Code: code, Volts: d.Volts(code)}, nil
}

// Volts applies the linear transform to an ADC code.
func (d Decoder) Volts(code float64) float64 {
	if d.FullScale == 0 {
		return 0
	}
	return code / d.FullScale * d.Reference
}

// Encode is the inverse of Volts, formatted as a device payload. Simulated
// feeds use it so their samples go through the same decode path.
func (d Decoder) Encode(volts float64) []byte {
	code := 0.0
	if d.Reference != 0 {
		code = volts / d.Reference * d.FullScale
	}
	return strconv.AppendFloat(nil, code, 'f', 3, 64)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
