// Package vpos is a card payment gateway in front of Turkish bank virtual
// POS terminals. It exposes one JSON API for charges, 3-D Secure flows,
// pre-authorizations and reversals, and hides each bank's protocol behind
// an adapter.
//
// # Architecture
//
//	┌──────────────┐    ┌──────────────────────────────┐    ┌──────────────┐
//	│  Merchant    │◄──►│  vpos                        │◄──►│  Bank POS    │
//	│  backends    │    │  bin → routing → adapter     │    │  endpoints   │
//	└──────────────┘    └──────────────────────────────┘    └──────────────┘
//	       ▲                        │
//	       │ redirect               ▼
//	┌──────────────┐    ┌──────────────────────────────┐
//	│  Cardholder  │◄──►│  /payment/{id}/form,callback │
//	│  browser     │    └──────────────────────────────┘
//	└──────────────┘
//
// A charge resolves the card's BIN, picks a terminal for the card and
// partner, computes commission, and calls the terminal's adapter. 3-D
// charges stop at a hosted form that posts the cardholder to the bank; the
// bank posts back to the callback URL, which completes the charge exactly
// once.
//
// # Packages
//
//   - provider: shared model, adapter contract, registry and bank helpers
//   - provider/*: one adapter per bank protocol (NestPay, Garanti, Akbank,
//     YapıKredi, VakıfBank, Denizbank, QNB, Kuveyt Türk, Vakıf Katılım,
//     iyzico) plus a mock bank
//   - bin: BIN lookup with cache, HTTP sources and a heuristic fallback
//   - routing: terminal selection and installment offers
//   - commission: bank and platform commission calculation
//   - payment: the engine behind every public operation
//   - infra/storage: SQLite and in-memory stores, seed provisioning
//   - handler, router: the HTTP surface
//
// # Running
//
//	go run ./cmd -genkey          # print an API key, secret and secret hash
//	go run ./cmd -seed seed.json  # start with terminals from a seed file
//
// Configuration comes from the environment (or a .env file); see
// infra/config.
package vpos
