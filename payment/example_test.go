package payment_test

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mstgnz/vpos/bin"
	"github.com/mstgnz/vpos/infra/crypto"
	"github.com/mstgnz/vpos/infra/storage"
	"github.com/mstgnz/vpos/payment"
	"github.com/mstgnz/vpos/provider"
	"github.com/mstgnz/vpos/provider/mock"
	"github.com/shopspring/decimal"
)

func newExampleService() *payment.Service {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cipher, err := crypto.NewCipher("", true)
	if err != nil {
		log.Fatal(err)
	}

	seed := storage.Seed{Terminals: []storage.SeedTerminal{{
		Terminal: provider.Terminal{
			ID:          "sandbox",
			Name:        "Sandbox POS",
			BankCode:    "mock",
			Provider:    mock.ID,
			Currencies:  []string{"TRY"},
			ThreeD:      provider.ThreeDSettings{Enabled: true, Model: provider.Model3D},
			AllowDirect: true,
			Active:      true,
		},
		Credentials: []byte(`{"merchantId":"M100","secretKey":"example-secret"}`),
	}}}
	if _, _, err := storage.ApplySeed(ctx, store, seed, cipher); err != nil {
		log.Fatal(err)
	}

	svc, err := payment.NewService(payment.Options{
		Store:       store,
		Resolver:    bin.NewResolver(bin.ResolverOptions{TTL: time.Minute, Store: store, LocalCountry: "TR"}),
		Cipher:      cipher,
		BaseURL:     "https://pay.example.com",
		BankTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatal(err)
	}
	return svc
}

func exampleRequest(model provider.PaymentModel) payment.PaymentRequest {
	return payment.PaymentRequest{
		Amount:   decimal.RequireFromString("249.90"),
		Currency: "TRY",
		Model:    model,
		Card: payment.CardInput{
			Holder:      "Ada Lovelace",
			Number:      mock.ApprovedPAN,
			ExpiryMonth: "12",
			ExpiryYear:  "2030",
			CVV:         "123",
		},
	}
}

func ExampleService_CreatePayment() {
	svc := newExampleService()

	res, err := svc.CreatePayment(context.Background(), exampleRequest(provider.ModelRegular))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Status, res.Success)
	// Output: success true
}

func ExampleService_CreatePayment_threeD() {
	svc := newExampleService()

	res, err := svc.CreatePayment(context.Background(), exampleRequest(provider.Model3D))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Status)
	fmt.Println(res.FormURL == svc.FormURL(res.TransactionID))
	fmt.Println(strings.HasPrefix(res.FormURL, "https://pay.example.com/payment/"))
	// Output:
	// processing
	// true
	// true
}
