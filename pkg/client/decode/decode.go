// Package decode decodes a response body according to its Content-Encoding.
package decode

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// Decode wraps the raw body with a decoder matching the Content-Encoding,
// "gzip" and "br" are supported, anything else returns the body unchanged.
// Closing the returned reader closes the raw body too.
func Decode(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	switch strings.ToLower(contentEncoding) {
	case "gzip":
		v, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("cannot decode gzip: %w", err)
		}
		return &decodedBody{Reader: v, raw: body, decoder: v}, nil
	case "br":
		return &decodedBody{Reader: brotli.NewReader(body), raw: body}, nil
	default:
		return body, nil
	}
}

type decodedBody struct {
	io.Reader
	raw     io.ReadCloser
	decoder io.Closer // nil if the decoder has no Close method
}

func (b *decodedBody) Close() error {
	var decoderErr error
	if b.decoder != nil {
		decoderErr = b.decoder.Close()
	}
	if err := b.raw.Close(); err != nil {
		return err
	}
	return decoderErr
}
