package protocol

import (
	"fmt"
	"strconv"
)

// Arctech parameter ranges. Code switch transmitters address receivers
// with a rotary house letter and unit wheel; self-learning transmitters
// carry a 26-bit sender id instead.
const (
	arctechUnitMin = 1
	arctechUnitMax = 16

	arctechHouseMin = 1
	arctechHouseMax = 1<<26 - 1

	dimLevelMax = 255
)

// arctechModelMethods maps each model to the operations it can express.
var arctechModelMethods = map[string]int{
	"codeswitch":          methodTurnOn | methodTurnOff,
	"bell":                methodBell,
	"selflearning":        methodTurnOn | methodTurnOff | methodLearn,
	"selflearning-switch": methodTurnOn | methodTurnOff | methodLearn,
	"selflearning-dimmer": methodTurnOn | methodTurnOff | methodDim | methodLearn,
}

// encodeArctech encodes operations for arctech-compatible transmitters.
func encodeArctech(model string, params map[string]string, method int, value string) (string, error) {
	supported, ok := arctechModelMethods[model]
	if !ok {
		return "", fmt.Errorf("%w: arctech model %q", ErrUnsupportedMethod, model)
	}
	if method&supported != method {
		return "", fmt.Errorf("%w: arctech model %q cannot %d", ErrUnsupportedMethod, model, method)
	}

	house, unit, err := arctechAddress(model, params)
	if err != nil {
		return "", err
	}

	name, err := methodName(method)
	if err != nil {
		return "", err
	}

	cmd := fmt.Sprintf("protocol:arctech;model:%s;house:%s;unit:%s;method:%s;", model, house, unit, name)

	if method == methodDim {
		level, err := strconv.Atoi(value)
		if err != nil || level < 0 || level > dimLevelMax {
			return "", fmt.Errorf("%w: dim level %q", ErrInvalidParameter, value)
		}
		cmd += fmt.Sprintf("level:%d;", level)
	}

	return cmd, nil
}

// arctechAddress validates the house/unit parameters for the model.
func arctechAddress(model string, params map[string]string) (house, unit string, err error) {
	house = params["house"]
	unit = params["unit"]

	if model == "codeswitch" || model == "bell" {
		// House is a single rotary letter A..P.
		if len(house) != 1 || house[0] < 'A' || house[0] > 'P' {
			return "", "", fmt.Errorf("%w: house %q (want A-P)", ErrInvalidParameter, house)
		}
	} else {
		h, aerr := strconv.Atoi(house)
		if aerr != nil || h < arctechHouseMin || h > arctechHouseMax {
			return "", "", fmt.Errorf("%w: house %q (want %d-%d)", ErrInvalidParameter, house, arctechHouseMin, arctechHouseMax)
		}
	}

	if model == "bell" {
		// Bell transmitters have no unit wheel.
		return house, "1", nil
	}

	u, uerr := strconv.Atoi(unit)
	if uerr != nil || u < arctechUnitMin || u > arctechUnitMax {
		return "", "", fmt.Errorf("%w: unit %q (want %d-%d)", ErrInvalidParameter, unit, arctechUnitMin, arctechUnitMax)
	}

	return house, unit, nil
}
