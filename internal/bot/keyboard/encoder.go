package keyboard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// CallbackPrefix marks callback data that telebot routes by unique.
	CallbackPrefix         = "\f"
	CallbackDataSeparator  = "|"
	CallbackDataLimitBytes = 64
)

var uniquePattern = regexp.MustCompile(`^[-\w]+$`)

// EncodeCallback returns the callback data telebot puts on the wire for a
// button, failing when Telegram would reject it.
func EncodeCallback(unique, data string) (string, error) {
	if !uniquePattern.MatchString(unique) {
		return "", fmt.Errorf("invalid callback unique %q", unique)
	}

	payload := CallbackPrefix + unique
	if data != "" {
		payload += CallbackDataSeparator + data
	}

	if len(payload) > CallbackDataLimitBytes {
		return "", fmt.Errorf("callback data exceeds %d byte limit: got %d", CallbackDataLimitBytes, len(payload))
	}

	return payload, nil
}

// DecodeCallback splits wire callback data into unique and payload.
func DecodeCallback(callbackData string) (unique, data string, err error) {
	callbackData = strings.TrimPrefix(callbackData, CallbackPrefix)
	if callbackData == "" {
		return "", "", errors.New("callback data is empty")
	}

	unique, data, _ = strings.Cut(callbackData, CallbackDataSeparator)
	return unique, data, nil
}
