package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQRPayload(t *testing.T) {
	want := QRPayload{ManufacturerID: "mfgA", ProductID: "modelX", SerialNumber: "SN001"}

	tests := []struct {
		name    string
		raw     string
		want    QRPayload
		wantErr bool
	}{
		{name: "bare triple", raw: "mfgA|modelX|SN001", want: want},
		{name: "surrounding whitespace", raw: "  mfgA | modelX | SN001\n", want: want},
		{name: "url-encoded triple", raw: "mfgA%7CmodelX%7CSN001", want: want},
		{name: "full https url", raw: "https://ecotrace.test/scan?data=mfgA%7CmodelX%7CSN001", want: want},
		{name: "url with other params", raw: "http://localhost:8080/scan?src=label&data=mfgA%7CmodelX%7CSN001", want: want},
		{name: "relative url", raw: "scan?data=mfgA|modelX|SN001", want: want},
		{name: "empty", raw: "", wantErr: true},
		{name: "two parts", raw: "mfgA|modelX", wantErr: true},
		{name: "four parts", raw: "mfgA|modelX|SN001|extra", wantErr: true},
		{name: "empty middle part", raw: "mfgA||SN001", wantErr: true},
		{name: "whitespace-only part", raw: "mfgA|   |SN001", wantErr: true},
		{name: "trailing separator", raw: "mfgA|modelX|", wantErr: true},
		{name: "url without data", raw: "https://ecotrace.test/scan?id=1", wantErr: true},
		{name: "encoded four parts", raw: "mfgA%7CmodelX%7CSN001%7Cextra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQRPayload(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindInvalidArgument, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQRPayload_URLParsesBack(t *testing.T) {
	p := QRPayload{ManufacturerID: "mfgA", ProductID: "0b6f7c1e-8d0a-4c36-9f7e-2f1d3c4b5a69", SerialNumber: "SN 001"}

	assert.Equal(t, "mfgA|0b6f7c1e-8d0a-4c36-9f7e-2f1d3c4b5a69|SN 001", p.String())

	for _, base := range []string{"https://ecotrace.test/scan", "https://ecotrace.test/scan?src=label"} {
		u := p.URL(base)
		got, err := ParseQRPayload(u)
		require.NoError(t, err, u)
		assert.Equal(t, p, got)
	}
}
