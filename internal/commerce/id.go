package commerce

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidProductID = errors.New("invalid product id")

// DecodeID recovers the numeric database id from a global id such as
// base64("product:42").
func DecodeID(id string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(id)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidProductID, id)
	}
	_, num, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidProductID, id)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidProductID, id)
	}
	return n, nil
}
