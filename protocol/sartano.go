package protocol

import "fmt"

// sartanoCodeLength is the number of DIP switch positions on sartano and
// brateck receivers.
const sartanoCodeLength = 10

// encodeSartano encodes operations for sartano-compatible transmitters,
// addressed by a 10-position DIP switch code of '0'/'1' characters.
func encodeSartano(_ string, params map[string]string, method int, _ string) (string, error) {
	if method != methodTurnOn && method != methodTurnOff {
		return "", fmt.Errorf("%w: sartano cannot %d", ErrUnsupportedMethod, method)
	}

	code := params["code"]
	if len(code) != sartanoCodeLength {
		return "", fmt.Errorf("%w: code %q (want %d switch positions)", ErrInvalidParameter, code, sartanoCodeLength)
	}
	for i := 0; i < len(code); i++ {
		if code[i] != '0' && code[i] != '1' {
			return "", fmt.Errorf("%w: code %q (positions must be 0 or 1)", ErrInvalidParameter, code)
		}
	}

	name, err := methodName(method)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("protocol:sartano;model:codeswitch;code:%s;method:%s;", code, name), nil
}
