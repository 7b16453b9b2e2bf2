package provider

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOrderID(t *testing.T) {
	now := time.Date(2025, 3, 7, 14, 5, 9, 0, time.UTC)

	tests := []struct {
		ref   string
		width int
		want  string
	}{
		{"bk-1234", 20, "250307140509BK123400"},
		{"abc", 0, "250307140509ABC"},
		{"very-long-booking-reference", 16, "250307140509VERY"},
		{"çş!", 14, "25030714050900"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got := BuildOrderID(now, tt.ref, tt.width)
			assert.Equal(t, tt.want, got)
			if tt.width > 0 {
				assert.Len(t, got, tt.width)
			}
		})
	}
}

func TestSessionOrderIDIsStable(t *testing.T) {
	clock := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	s := &Session{
		Tx:  &Transaction{ID: "tx-1", ExternalID: "B77"},
		Now: func() time.Time { return clock },
	}

	first := s.OrderID(20)
	clock = clock.Add(time.Hour)
	assert.Equal(t, first, s.OrderID(20), "order id must not change once assigned")
	assert.Equal(t, first, s.Tx.OrderID)
	assert.True(t, strings.HasPrefix(first, "250101100000B77"))
}

func TestSessionEndpoint(t *testing.T) {
	s := &Session{Terminal: &Terminal{TestMode: true}}
	assert.Equal(t, "test", s.Endpoint("api", "test", "live"))

	s.Terminal.TestMode = false
	assert.Equal(t, "live", s.Endpoint("api", "test", "live"))

	s.Terminal.Endpoints = map[string]string{"api": "http://127.0.0.1:9000"}
	assert.Equal(t, "http://127.0.0.1:9000", s.Endpoint("api", "test", "live"))
	assert.Equal(t, "live", s.Endpoint("gate", "test", "live"))
}

func TestSessionLogsAreSanitized(t *testing.T) {
	s := &Session{Tx: &Transaction{}}
	s.Log("provision", map[string]string{"pan": "4111111111111111", "cv2": "123"}, "ok")

	logs := s.DrainLogs()
	require.Len(t, logs, 1)
	req := logs[0].Request.(map[string]string)
	assert.Equal(t, "411111******1111", req["pan"])
	assert.Equal(t, "***", req["cv2"])
	assert.Empty(t, s.DrainLogs())
}

func TestThreeDState(t *testing.T) {
	type scratch struct {
		Fields map[string]string `json:"fields"`
	}

	st, err := NewState("nestpay", scratch{Fields: map[string]string{"oid": "1"}})
	require.NoError(t, err)

	var out scratch
	require.NoError(t, st.Decode("nestpay", &out))
	assert.Equal(t, "1", out.Fields["oid"])

	err = st.Decode("garanti", &out)
	assert.Equal(t, KindStateConflict, KindOf(err))

	var missing *ThreeDState
	assert.Equal(t, KindStateConflict, KindOf(missing.Decode("nestpay", &out)))
}

func TestAmountHelpers(t *testing.T) {
	amount := decimal.RequireFromString("100.5")

	assert.Equal(t, "100.50", FormatAmount(amount))
	assert.Equal(t, "100,50", FormatAmountComma(amount))
	assert.Equal(t, int64(10050), MinorUnits(amount))
	assert.Equal(t, "10050", MinorUnitsString(amount))
	assert.Equal(t, "", InstallmentString(1))
	assert.Equal(t, "6", InstallmentString(6))

	parsed, err := ParseAmount("12,34")
	require.NoError(t, err)
	assert.True(t, parsed.Equal(decimal.RequireFromString("12.34")))

	code, ok := CurrencyNumeric("try")
	assert.True(t, ok)
	assert.Equal(t, "949", code)
	alpha, ok := CurrencyAlpha("978")
	assert.True(t, ok)
	assert.Equal(t, "EUR", alpha)
}

func TestCardExpiryHelpers(t *testing.T) {
	c := Card{ExpiryMonth: "3", ExpiryYear: "2030"}
	assert.Equal(t, "03", c.Month2())
	assert.Equal(t, "30", c.Year2())
	assert.Equal(t, "2030", c.Year4())
	assert.Equal(t, "2031", Card{ExpiryYear: "31"}.Year4())
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities{Payment3D: true, Refund: true, PaymentModels: []PaymentModel{Model3D}}

	assert.True(t, caps.Supports(CapRefund))
	assert.False(t, caps.Supports(CapCancel))
	assert.False(t, caps.Supports(Capability("bogus")))
	assert.True(t, caps.SupportsModel(Model3D))
	assert.False(t, caps.SupportsModel(ModelRegular))
}

func TestRenderAutoSubmitForm(t *testing.T) {
	html, err := RenderAutoSubmitForm("https://bank.example.com/3d", SortedFields(map[string]string{
		"oid":    "O1",
		"amount": "10.00",
		"evil":   `"><script>`,
	}))
	require.NoError(t, err)

	assert.Contains(t, html, `action="https://bank.example.com/3d"`)
	assert.Contains(t, html, `name="amount" value="10.00"`)
	assert.Contains(t, html, "document.threeDForm.submit()")
	assert.NotContains(t, html, `"><script>`)
	assert.Less(t, strings.Index(html, "amount"), strings.Index(html, "oid"))
}

func TestValidateCredentials(t *testing.T) {
	fields := append(Required("clientId", "storeKey"), CredentialField{Key: "terminalId", Pattern: `^\d{8}$`})

	assert.NoError(t, ValidateCredentials("nestpay", Credentials{"clientId": "1", "storeKey": "k"}, fields))

	err := ValidateCredentials("nestpay", Credentials{"clientId": "1"}, fields)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "storeKey")

	err = ValidateCredentials("nestpay", Credentials{"clientId": "1", "storeKey": "k", "terminalId": "12"}, fields)
	assert.Equal(t, "INVALID_CREDENTIAL", CodeOf(err))
}

func TestTerminalHelpers(t *testing.T) {
	term := &Terminal{
		Currencies:        []string{"TRY", "USD"},
		DefaultCurrencies: []string{"TRY"},
		CardFamilies:      []string{"Bonus", "World"},
		ThreeD:            ThreeDSettings{Enabled: true},
	}

	assert.True(t, term.PlatformOwned())
	assert.True(t, term.SupportsCurrency("USD"))
	assert.False(t, term.SupportsCurrency("EUR"))
	assert.True(t, term.IsDefaultFor("TRY"))
	assert.True(t, term.AcceptsFamily("bonus"))
	assert.False(t, term.AcceptsFamily(""))
	assert.Equal(t, Model3D, term.Model())

	term.ThreeD.Enabled = false
	assert.Equal(t, ModelRegular, term.Model())
}
