package ordid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    OrdID
		wantErr bool
	}{
		{
			name: "api resource",
			raw:  "sap.billing:apiResource:CustomerInvoice:v2",
			want: OrdID{Namespace: "sap.billing", Kind: models.KindAPIResource, LocalID: "CustomerInvoice", Major: 2},
		},
		{
			name: "package with deep namespace",
			raw:  "acme.shop.checkout:package:orders:v1",
			want: OrdID{Namespace: "acme.shop.checkout", Kind: models.KindPackage, LocalID: "orders", Major: 1},
		},
		{
			name: "vendor",
			raw:  "acme:vendor:Acme:v1",
			want: OrdID{Namespace: "acme", Kind: models.KindVendor, LocalID: "Acme", Major: 1},
		},
		{
			name: "local id with dots and dashes",
			raw:  "sap.s4:eventResource:sap.s4.BusinessPartner-Changed:v1",
			want: OrdID{Namespace: "sap.s4", Kind: models.KindEventResource, LocalID: "sap.s4.BusinessPartner-Changed", Major: 1},
		},
		{name: "missing version", raw: "sap.billing:apiResource:CustomerInvoice", wantErr: true},
		{name: "unknown kind", raw: "sap.billing:gadget:CustomerInvoice:v1", wantErr: true},
		{name: "uppercase namespace", raw: "SAP.billing:apiResource:CustomerInvoice:v1", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "version without v", raw: "sap.billing:apiResource:CustomerInvoice:2", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}
}

func TestVendorNamespace(t *testing.T) {
	id, err := Parse("acme.shop.checkout:package:orders:v1")
	require.NoError(t, err)
	assert.Equal(t, "acme", id.VendorNamespace())

	id, err = Parse("acme:vendor:Acme:v1")
	require.NoError(t, err)
	assert.Equal(t, "acme", id.VendorNamespace())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, models.KindCapability, KindOf("acme:capability:search:v1"))
	assert.Equal(t, models.Kind(""), KindOf("not-an-ord-id"))
}
