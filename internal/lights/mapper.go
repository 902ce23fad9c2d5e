package lights

import (
	"fmt"

	"github.com/dokzlo13/lightshal/internal/config"
	"github.com/dokzlo13/lightshal/internal/curve"
)

const (
	colorMask  = 0x00FFFFFF
	mask16     = 0xFFFF
	byteMax    = 255
	fullOnByte = 255
)

// Luma returns the perceptual brightness of a packed 0xRRGGBB color
func Luma(color uint32) int {
	r := int((color >> 16) & 0xFF)
	g := int((color >> 8) & 0xFF)
	b := int(color & 0xFF)
	return (77*r + 150*g + 29*b) >> 8
}

// OnOff maps any nonzero color to full brightness
func OnOff(color uint32) int {
	if color&colorMask != 0 {
		return fullOnByte
	}
	return 0
}

// InputMode turns a packed state color into a requested brightness
type InputMode int

const (
	InputLuma InputMode = iota
	InputOnOff
	InputMask16
)

// ParseInputMode converts a config value into an InputMode
func ParseInputMode(s string) (InputMode, error) {
	switch s {
	case config.InputLuma:
		return InputLuma, nil
	case config.InputOnOff:
		return InputOnOff, nil
	case config.InputMask16:
		return InputMask16, nil
	}
	return 0, fmt.Errorf("%w: input mode %q", ErrInvalidArgument, s)
}

// Requested returns the brightness requested by color
func (m InputMode) Requested(color uint32) int {
	switch m {
	case InputOnOff:
		return OnOff(color)
	case InputMask16:
		return int(color & mask16)
	default:
		return Luma(color)
	}
}

// Max returns the largest value Requested can return
func (m InputMode) Max() int {
	if m == InputMask16 {
		return mask16
	}
	return byteMax
}

// ScaleLinearFloor maps requested in [0, inputMax] onto [minVisible, max], keeping 0 as full off.
func ScaleLinearFloor(requested, inputMax, max, minVisible int) (int, error) {
	if max <= minVisible {
		return 0, fmt.Errorf("%w: maximum %d <= min visible %d", ErrInvalidRange, max, minVisible)
	}
	if requested <= 0 {
		return 0, nil
	}
	out := requested*(max-minVisible)/inputMax + minVisible
	return clamp(out, max), nil
}

// ScaleRatio maps requested in [0, inputMax] onto [0, max] without a floor
func ScaleRatio(requested, inputMax, max int) int {
	if max <= 0 || requested <= 0 {
		return 0
	}
	return clamp(max*requested/inputMax, max)
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Mapper converts a state color into a device intensity for one channel
type Mapper struct {
	Input      InputMode
	Policy     string
	MinVisible int
	curve      *curve.Curve
}

// NewMapper builds a mapper from config values; curveSrc is only used by the curve policy.
func NewMapper(input, policy, curveSrc string, minVisible int) (*Mapper, error) {
	mode, err := ParseInputMode(input)
	if err != nil {
		return nil, err
	}
	m := &Mapper{Input: mode, Policy: policy, MinVisible: minVisible}
	switch policy {
	case config.PolicyLinearFloor, config.PolicyRatio:
	case config.PolicyCurve:
		m.curve, err = curve.Compile(curveSrc)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: scaling policy %q", ErrInvalidArgument, policy)
	}
	return m, nil
}

// Map returns the intensity for color on a device whose maximum is max
func (m *Mapper) Map(color uint32, max int) (int, error) {
	requested := m.Input.Requested(color)
	inputMax := m.Input.Max()

	switch m.Policy {
	case config.PolicyLinearFloor:
		return ScaleLinearFloor(requested, inputMax, max, m.MinVisible)
	case config.PolicyCurve:
		out, err := m.curve.Apply(requested, max, inputMax, m.MinVisible)
		if err != nil {
			return 0, err
		}
		return clamp(out, max), nil
	default:
		return ScaleRatio(requested, inputMax, max), nil
	}
}

// Close releases the curve VM, if any
func (m *Mapper) Close() {
	if m.curve != nil {
		m.curve.Close()
	}
}
