package fetch

import (
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// fallbackCharset covers the undeclared legacy encodings these lists come
// in; GB18030 is a superset of GBK and GB2312.
const fallbackCharset = "gb18030"

// ToUTF8 converts body to UTF-8. Valid UTF-8 passes through untouched; a BOM
// or a charset in contentType wins next; anything else is decoded as
// GB18030. On decode failure the input is returned unchanged.
func ToUTF8(body []byte, contentType string) []byte {
	if utf8.Valid(body) {
		return body
	}
	enc, _, certain := charset.DetermineEncoding(body, contentType)
	if !certain {
		enc, _ = charset.Lookup(fallbackCharset)
	}
	if enc == nil {
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}
