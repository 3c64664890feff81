package auth

import (
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// segmentParser re-pads input before decoding so both raw and padded
// base64url segments are accepted. Strict mode rejects non-canonical tails.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed(), jwt.WithStrictDecoding())

// signatureParser only accepts the exact unpadded form EncodeSegment emits,
// so a signature has a single valid spelling.
var signatureParser = jwt.NewParser(jwt.WithStrictDecoding())

// EncodeSegment encodes b as unpadded base64url.
func EncodeSegment(b []byte) string {
	return (&jwt.Token{}).EncodeSegment(b)
}

// DecodeSegment decodes a base64url segment, with or without padding.
func DecodeSegment(seg string) ([]byte, error) {
	b, err := segmentParser.DecodeSegment(seg)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrMalformedEncoding.Category, ErrMalformedEncoding.Message).
			WithTextCode(TextCodeMalformedEncoding)
	}
	return b, nil
}

// DecodeSignatureSegment decodes a signature segment. Padding is rejected.
func DecodeSignatureSegment(seg string) ([]byte, error) {
	b, err := signatureParser.DecodeSegment(seg)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrMalformedEncoding.Category, ErrMalformedEncoding.Message).
			WithTextCode(TextCodeMalformedEncoding)
	}
	return b, nil
}

func encodeJSONSegment(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode segment")
	}
	return EncodeSegment(b), nil
}

func decodeJSONSegment(seg string, v any) error {
	b, err := DecodeSegment(seg)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return goerrors.Wrap(err, ErrMalformedEncoding.Category, ErrMalformedEncoding.Message).
			WithTextCode(TextCodeMalformedEncoding)
	}
	return nil
}
