package model

import (
	"net/url"
	"strings"
)

// QRPayloadParam is the query parameter carrying the encoded triple.
const QRPayloadParam = "data"

// QRPayload identifies one product instance inside a scannable code.
type QRPayload struct {
	ManufacturerID string
	ProductID      string
	SerialNumber   string
}

// String encodes the payload as manufacturerId|productId|serialNumber.
func (p QRPayload) String() string {
	return p.ManufacturerID + "|" + p.ProductID + "|" + p.SerialNumber
}

// URL returns base with the url-encoded payload attached as a query parameter.
func (p QRPayload) URL(base string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + QRPayloadParam + "=" + url.QueryEscape(p.String())
}

// ParseQRPayload decodes a scanned code. It accepts the bare triple, its
// url-encoded form, or a full URL carrying it in the data parameter.
func ParseQRPayload(raw string) (QRPayload, error) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "?") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		if u, err := url.Parse(s); err == nil {
			if v := u.Query().Get(QRPayloadParam); v != "" {
				s = v
			}
		}
	}
	if strings.Contains(s, "%") {
		if unescaped, err := url.QueryUnescape(s); err == nil {
			s = unescaped
		}
	}

	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return QRPayload{}, Errorf(KindInvalidArgument, "invalid format: expected 3 parts, got %d", len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return QRPayload{}, Errorf(KindInvalidArgument, "invalid format: empty part %d", i+1)
		}
	}

	return QRPayload{
		ManufacturerID: parts[0],
		ProductID:      parts[1],
		SerialNumber:   parts[2],
	}, nil
}
